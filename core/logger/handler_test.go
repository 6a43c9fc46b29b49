package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(format logFormat, main, errs *bytes.Buffer) (*structuredHandler, func() string) {
	mw := newAsyncWriter([]io.Writer{main}, 1024)
	var ew *asyncWriter
	if errs != nil {
		ew = newAsyncWriter([]io.Writer{errs}, 1024)
	}
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   mw,
		errors:   ew,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	done := func() string {
		_ = mw.Close()
		if ew != nil {
			_ = ew.Close()
		}
		return strings.TrimSpace(main.String())
	}
	return h, done
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	h, done := newTestHandler(formatKV, &bytes.Buffer{}, nil)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithFeature(ctx, "merge")

	LogEvent(ctx, slog.New(h).With("component", CompUpload), slog.LevelInfo, "upload.accepted",
		slog.String("status", "ok"),
		slog.Int("files", 2),
	)
	line := done()

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=upload", "event=upload.accepted", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9", "feature=merge", "files=2"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	h, done := newTestHandler(formatJSON, &bytes.Buffer{}, nil)
	ctx := WithUpdateMeta(WithRID(Background(), "rid-json"), 11, 22, 33)

	LogEvent(ctx, slog.New(h).With("component", CompAccess), slog.LevelError, "access.lookup_failed",
		slog.String("status", "FAIL"),
		slog.String("err", "boom"),
		slog.String("err_code", "DB"),
	)
	line := done()

	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"access"`, `"event":"access.lookup_failed"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	h, done := newTestHandler(formatKV, &bytes.Buffer{}, nil)
	rawRID := BuildRID(123, 456, 789)
	LogEvent(WithRID(Background(), rawRID), slog.New(h), slog.LevelInfo, "rid.test")
	line := done()

	if !strings.Contains(line, "rid=3f.co.lx") {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
	if !strings.Contains(line, "component=app") {
		t.Fatalf("expected default component, got %s", line)
	}
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	h, done := newTestHandler(formatJSON, &bytes.Buffer{}, nil)
	rawRID := "12:34:56"
	LogEvent(WithRID(Background(), rawRID), slog.New(h), slog.LevelInfo, "rid.test")
	line := done()

	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano in JSON output, got %s", line)
	}
}

func TestStructuredHandlerDurationAndOutcome(t *testing.T) {
	h, done := newTestHandler(formatKV, &bytes.Buffer{}, nil)
	LogEvent(Background(), slog.New(h), slog.LevelInfo, "handler.handled",
		slog.Duration("duration", 1499*time.Microsecond),
		slog.Duration("send_duration", 2*time.Second),
		slog.String("outcome", "exploded"),
		slog.String("empty", ""),
	)
	line := done()

	for _, want := range []string{"duration_ms=1", "send_duration_ms=2000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %s", want, line)
		}
	}
	for _, unwanted := range []string{"outcome=", "empty="} {
		if strings.Contains(line, unwanted) {
			t.Fatalf("did not expect %q in %s", unwanted, line)
		}
	}
}

func TestStructuredHandlerErrorsCopy(t *testing.T) {
	errs := &bytes.Buffer{}
	h, done := newTestHandler(formatKV, &bytes.Buffer{}, errs)
	log := slog.New(h)
	LogEvent(Background(), log, slog.LevelInfo, "quiet")
	LogEvent(Background(), log, slog.LevelError, "loud")
	done()

	got := strings.TrimSpace(errs.String())
	if strings.Contains(got, "event=quiet") || !strings.Contains(got, "event=loud") {
		t.Fatalf("errors sink should only hold ERROR records, got %q", got)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var allowed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}

	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/50":  {1, 50},
		"20":    {1, 20},
		"0":     {0, 0},
		"x/y":   {0, 0},
		"":      {0, 0},
		" 2/5 ": {2, 5},
	}
	for in, want := range cases {
		num, den := parseRatioSpec(in)
		if num != want[0] || den != want[1] {
			t.Errorf("parseRatioSpec(%q) = %d/%d, want %d/%d", in, num, den, want[0], want[1])
		}
	}
}

func TestSanitizeLimitMasksPhones(t *testing.T) {
	cases := map[string]string{
		"bad number +62 812-3456-7890": "bad number ***90",
		"08123456789 and 0812345678":   "***89 and ***78",
		"retry 3 of 12":                "retry 3 of 12",
		"ctl\x07 char":                 "ctl char",
	}
	for in, want := range cases {
		if got := SanitizeLimit(in, 100); got != want {
			t.Errorf("SanitizeLimit(%q) = %q, want %q", in, got, want)
		}
	}
	if got := SanitizeLimit("abcdef", 3); got != "abc" {
		t.Fatalf("limit = %q", got)
	}
}

func TestStructuredHandlerKeepsRejectedOutcome(t *testing.T) {
	h, done := newTestHandler(formatKV, &bytes.Buffer{}, nil)
	LogEvent(Background(), slog.New(h), slog.LevelInfo, "handler.handled",
		slog.String("outcome", "Rejected"),
		slog.String("err_code", "BAD_NUMBER"),
	)
	line := done()
	if !strings.Contains(line, "outcome=rejected") {
		t.Fatalf("expected outcome=rejected in %s", line)
	}
}
