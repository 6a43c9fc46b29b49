// Package router turns the registry and the conversation manager into
// telebot routes that log one handler.handled line per update.
package router

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/vcfbot/core/telegram"
	"github.com/m3rciful/vcfbot/core/telegram/middleware"
)

// CommandRouteOptions configures the owner check of owner-only commands.
type CommandRouteOptions struct {
	IsOwner       func(userID int64) bool
	OnOwnerReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command. Commands are
// their own endpoints, so /start or /cancel work in the middle of a
// conversation.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	ownerOnly := middleware.OwnerOnlyMiddleware(middleware.OwnerOptions{
		IsOwner:  opts.IsOwner,
		OnReject: opts.OnOwnerReject,
	})
	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for _, cmd := range cmds {
		inner := cmd.Handler
		if cmd.OwnerOnly {
			inner = ownerOnly(inner)
		}
		name := handlerName(cmd.Name)
		routes = append(routes, tg.Route{
			Endpoint: cmd.Name,
			Handler: func(c tele.Context) error {
				return handled(c, name, func() error { return inner(c) })
			},
		})
	}
	return routes
}
