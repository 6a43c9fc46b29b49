package middleware

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

type senderCtx struct {
	tele.Context
	user *tele.User
}

func (s senderCtx) Sender() *tele.User { return s.user }

func TestUpdateKind(t *testing.T) {
	cases := map[string]tele.Update{
		"callback": {Callback: &tele.Callback{}},
		"document": {Message: &tele.Message{Document: &tele.Document{}}},
		"message":  {Message: &tele.Message{Text: "hi"}},
		"other":    {},
	}
	for want, upd := range cases {
		if got := UpdateKind(upd); got != want {
			t.Errorf("UpdateKind = %q, want %q", got, want)
		}
	}
}

func TestOwnerOnlyMiddleware(t *testing.T) {
	rejected := 0
	mw := OwnerOnlyMiddleware(OwnerOptions{
		IsOwner:  func(id int64) bool { return id == 1 },
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	ran := 0
	h := mw(func(tele.Context) error { ran++; return nil })

	_ = h(senderCtx{user: &tele.User{ID: 1}})
	_ = h(senderCtx{user: &tele.User{ID: 2}})
	_ = h(senderCtx{})
	if ran != 1 || rejected != 2 {
		t.Fatalf("ran=%d rejected=%d", ran, rejected)
	}
}

func TestLimiterAllowsAfterInterval(t *testing.T) {
	l := newLimiter(500 * time.Millisecond)
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if !l.allow(7, t0) {
		t.Fatal("first update must pass")
	}
	if l.allow(7, t0.Add(100*time.Millisecond)) {
		t.Fatal("burst must be limited")
	}
	if !l.allow(8, t0.Add(100*time.Millisecond)) {
		t.Fatal("other users are independent")
	}
	if !l.allow(7, t0.Add(600*time.Millisecond)) {
		t.Fatal("update after the interval must pass")
	}
}

func TestLimiterSweepsStaleUsers(t *testing.T) {
	l := newLimiter(time.Second)
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for id := int64(1); id <= 3; id++ {
		l.allow(id, t0)
	}
	l.allow(9, t0.Add(2*time.Minute))
	if len(l.seen) != 1 {
		t.Fatalf("seen = %d entries, want 1", len(l.seen))
	}
}
