package helpers

import (
	"testing"
	"time"
)

func TestFormatUnix(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	ts := time.Date(2025, 3, 4, 5, 6, 0, 0, time.UTC).Unix()
	if got := FormatUnix(ts, loc); got != "04-03-2025 12:06" {
		t.Fatalf("FormatUnix = %q", got)
	}
	if got := FormatUnix(0, loc); got != "-" {
		t.Fatalf("zero timestamp = %q, want -", got)
	}
	if got := FormatTime(time.Time{}, nil); got != "-" {
		t.Fatalf("zero time = %q, want -", got)
	}
}
