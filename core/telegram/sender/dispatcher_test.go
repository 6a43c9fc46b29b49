package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func call(chat int64, run func() error) Call {
	return Call{ChatID: chat, Action: "send.text", Endpoint: "sendMessage", Run: run}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	var calls atomic.Int32
	err := d.Do(context.Background(), call(7, func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("Do = %v, want success after retries", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}

	boom := errors.New("Bad Request: chat not found (400)")
	calls.Store(0)
	if err := d.Do(context.Background(), call(7, func() error { calls.Add(1); return boom })); !errors.Is(err, boom) {
		t.Fatalf("Do = %v, want the permanent error", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent error retried %d times", calls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("ErrorCount = %d, want 1", d.ErrorCount())
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond})
	defer d.Close()

	var calls atomic.Int32
	err := d.Do(context.Background(), call(1, func() error {
		calls.Add(1)
		return &net.OpError{Op: "dial", Err: errors.New("refused")}
	}))
	if err == nil || calls.Load() != 2 {
		t.Fatalf("err = %v calls = %d, want failure after 2 attempts", err, calls.Load())
	}
}

func TestSameChatRunsInIssueOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4})
	defer d.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	jobs := make([]job, 10)
	for i := range jobs {
		jobs[i] = job{ctx: context.Background(), done: make(chan error, 1), call: call(42, func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})}
		if err := d.push(jobs[i]); err != nil {
			t.Fatal(err)
		}
	}
	for _, j := range jobs {
		if err := <-j.done; err != nil {
			t.Fatal(err)
		}
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
}

func TestNegativeChatIDsShareALane(t *testing.T) {
	d := NewDispatcher(Options{Workers: 3})
	defer d.Close()
	if d.lane(-1001234) != d.lane(-1001234) {
		t.Fatal("lane is not stable")
	}
	if err := d.Do(context.Background(), call(-1001234, func() error { return nil })); err != nil {
		t.Fatal(err)
	}
}

func TestDoAfterCloseRunsInline(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()
	ran := false
	if err := d.Do(context.Background(), call(1, func() error { ran = true; return nil })); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("run was not called")
	}
}

func TestFileCallsGetLongerBudget(t *testing.T) {
	d := NewDispatcher(Options{MaxDuration: time.Second})
	defer d.Close()
	if got := d.budget("send.text"); got != time.Second {
		t.Fatalf("text budget = %v", got)
	}
	if got := d.budget("get.file"); got != 5*time.Second {
		t.Fatalf("file budget = %v", got)
	}
}

func TestRedact(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABC-def_1/sendMessage": timeout`)
	if got := redact(err); got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout` {
		t.Fatalf("redacted = %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{&net.DNSError{Err: "no such host", Name: "api.telegram.org"}, "dns"},
		{errors.New("telegram: Bad Request (400)"), "http_4xx"},
		{errors.New("telegram: Bad Gateway (502)"), "http_5xx"},
		{errors.New("odd"), "unknown"},
	}
	for _, tc := range cases {
		if got := classify(tc.err); got != tc.want {
			t.Errorf("classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
