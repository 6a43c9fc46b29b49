package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/vcfbot/core/telegram"
	"github.com/m3rciful/vcfbot/core/telegram/callbacks"
)

// CallbackOptions overrides the registry's handler for unknown keys.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every button press. The spinner is stopped first
// so slow conversions do not leave the button loading.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler: func(c tele.Context) error {
			cb := c.Callback()
			if cb == nil {
				return nil
			}
			_ = c.Respond()
			key, _ := callbacks.Parse(cb)
			name := "callback." + handlerName(key)
			if h, ok := reg.Callback(key); ok {
				return handled(c, name, func() error { return h(c) }, slog.String("cb_key", key))
			}
			h := opts.NotFound
			if h == nil {
				h = reg.CallbackNotFound()
			}
			return handled(c, name, func() error { return h(c) },
				slog.String("cb_key", key), slog.String("reason", "not_found"))
		},
	}
}
