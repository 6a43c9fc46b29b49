package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("submit: %w", Capacity("file_too_large", "File terlalu besar"))
	if got := KindOf(err); got != KindCapacity {
		t.Fatalf("KindOf = %v, want capacity", got)
	}
	if got := Message(err); got != "File terlalu besar" {
		t.Fatalf("Message = %q", got)
	}
	if !UserVisible(err) {
		t.Fatal("capacity errors with a message are user visible")
	}
}

func TestRaceNoopMatchesAnyRaceError(t *testing.T) {
	err := fmt.Errorf("fire: %w", &Error{Kind: KindRaceNoop, Code: "stale_timer"})
	if !errors.Is(err, ErrRaceNoop) {
		t.Fatal("stale timer error must match ErrRaceNoop")
	}
	if errors.Is(Validation("bad_ext", "x"), ErrRaceNoop) {
		t.Fatal("validation error must not match ErrRaceNoop")
	}
	if UserVisible(err) {
		t.Fatal("race no-ops are never shown")
	}
}

func TestTransportUnwrap(t *testing.T) {
	base := errors.New("connection reset")
	err := Transport("preview_send", base)
	if !errors.Is(err, base) {
		t.Fatal("transport error must unwrap to its cause")
	}
	var e *Error
	if !errors.As(err, &e) || e.ErrCode() != "preview_send" {
		t.Fatalf("unexpected code: %v", err)
	}
	if (&Error{Kind: KindStateMismatch}).ErrCode() != "state_mismatch" {
		t.Fatal("empty code falls back to the kind name")
	}
}
