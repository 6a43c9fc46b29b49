package router

import (
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/vcfbot/core/telegram"
)

var timeNow = time.Now

// FSM is whatever owns the per-user conversations.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions holds the answers for text and files nobody waits for.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

func inProgress(fsm FSM, c tele.Context) bool {
	u := c.Sender()
	return fsm != nil && u != nil && fsm.InProgress(u.ID)
}

// TextRoutes sends text and documents to the user's conversation when one
// is open, otherwise to the fallbacks.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	route := func(name string, fallback func() tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if inProgress(fsm, c) {
				return handled(c, "fsm."+name, func() error { return fsm.ManagerHandler(c) })
			}
			if h := fallback(); h != nil {
				return handled(c, "unknown_"+name, func() error { return h(c) })
			}
			summarize(c, "unknown_"+name, timeNow(), outcomeSkip, nil)
			return nil
		}
	}
	text := func() tele.HandlerFunc {
		if reg != nil {
			if h := reg.TextFallback(); h != nil {
				return h
			}
		}
		return opts.UnknownText
	}
	doc := func() tele.HandlerFunc { return opts.UnknownDocument }
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: route("text", text)},
		{Endpoint: tele.OnDocument, Handler: route("document", doc)},
	}
}
