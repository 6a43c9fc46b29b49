package middleware

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

// Counters tracks what a handler sent back while serving one update.
type Counters struct {
	messages atomic.Int32
	kb       atomic.Bool
}

// Note records one outgoing message.
func (n *Counters) Note(hasKB bool) {
	if n == nil {
		return
	}
	n.messages.Add(1)
	if hasKB {
		n.kb.Store(true)
	}
}

const countersKey = "metrics"

type countersCtxKey struct{}

// countersOf returns the counters of the update behind c, creating them on
// first use so nested middleware share one instance.
func countersOf(c tele.Context) *Counters {
	if n, ok := c.Get(countersKey).(*Counters); ok {
		return n
	}
	n := &Counters{}
	c.Set(countersKey, n)
	return n
}

func withCounters(ctx context.Context, n *Counters) context.Context {
	return context.WithValue(ctx, countersCtxKey{}, n)
}

// NoteSent counts a message sent on behalf of the update carried by ctx.
// Senders that do not go through tele.Context (the dispatcher-backed
// messenger) report here.
func NoteSent(ctx context.Context, hasKB bool) {
	if ctx == nil {
		return
	}
	if n, ok := ctx.Value(countersCtxKey{}).(*Counters); ok {
		n.Note(hasKB)
	}
}

// metricsContext wraps tele.Context to count sent messages and detect keyboard usage.
type metricsContext struct {
	tele.Context
	n *Counters
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.n.Note(hasKeyboard(opts))
	}
	return err
}

func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.n.Note(hasKeyboard(opts))
	}
	return err
}

func (m metricsContext) Edit(what interface{}, opts ...interface{}) error {
	err := m.Context.Edit(what, opts...)
	if err == nil {
		m.n.Note(hasKeyboard(opts))
	}
	return err
}

func (m metricsContext) EditOrSend(what interface{}, opts ...interface{}) error {
	err := m.Context.EditOrSend(what, opts...)
	if err == nil {
		m.n.Note(hasKeyboard(opts))
	}
	return err
}

// MessageMetricsMiddleware counts replies made directly through tele.Context.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		return next(metricsContext{Context: c, n: countersOf(c)})
	}
}

// GetCounters reads message count and keyboard presence for the update behind c.
func GetCounters(c tele.Context) (int, bool) {
	n, ok := c.Get(countersKey).(*Counters)
	if !ok {
		return 0, false
	}
	return int(n.messages.Load()), n.kb.Load()
}
