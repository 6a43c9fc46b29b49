package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/logger"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
	"github.com/m3rciful/vcfbot/core/telegram/sender"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint: a "/command", a
// tele.OnText style constant or a callback endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions configures RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	HTTP       HTTPOptions
	Dispatcher sender.Options

	Middlewares []Middleware
	// Wire runs once the bot and the dispatcher exist. It fills the
	// registry and returns the routes to install.
	Wire func(rt Runtime) ([]Route, error)

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what the hooks get to work with.
type Runtime struct {
	Bot        tele.API
	Dispatcher *sender.Dispatcher
	Registry   *Registry
}

var errPollerStopped = errors.New("telegram: poller stopped")

// RunTelegram builds the bot, installs middlewares and routes, publishes
// the command menus and serves updates until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller := NewPoller(cfg)
	built := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  NewHTTPClient(opts.HTTP),
		OnError: onError,
	})
	if err != nil {
		return fmt.Errorf("telegram: new bot: %w", err)
	}
	logMode(ctx, bot, poller, time.Since(built))

	dispatcher := sender.NewDispatcher(opts.Dispatcher)
	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}

	var routes []Route
	if opts.Wire != nil {
		if routes, err = opts.Wire(rt); err != nil {
			dispatcher.Close()
			return fmt.Errorf("telegram: wire: %w", err)
		}
	}
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	if err := reg.Publish(bot, cfg.Telegram.OwnerIDs); err != nil {
		logger.Warn(ctx, logger.CompTG, "commands.publish",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	} else {
		logger.Info(ctx, logger.CompTG, "commands.publish",
			slog.Int("public", len(reg.Menu(false))),
			slog.Int("owner", len(reg.Menu(true))),
			slog.Int("owners", len(cfg.Telegram.OwnerIDs)),
		)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	runErr := errPollerStopped
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		runErr = nil
	case <-done:
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil && runErr == nil {
			runErr = err
		}
	}
	dispatcher.Close()
	return runErr
}

func logMode(ctx context.Context, bot *tele.Bot, poller tele.Poller, took time.Duration) {
	attrs := []slog.Attr{slog.Duration("duration", logger.RoundMS(took))}
	if bot.Me != nil {
		attrs = append(attrs, slog.String("bot", bot.Me.Username))
	}
	switch p := poller.(type) {
	case *tele.Webhook:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
		)
		// A webhook left over from an earlier deployment blocks getUpdates.
		if err := bot.RemoveWebhook(); err != nil {
			logger.Warn(ctx, logger.CompTG, "webhook.remove", slog.String("err", err.Error()))
		}
	}
	logger.Info(ctx, logger.CompTG, "mode", attrs...)
}

// onError sees the errors handlers return. Routed handlers already wrote
// their handler.handled line, so this only keeps a debug trace.
func onError(err error, c tele.Context) {
	logger.Debug(tghelpers.BuildContext(c), logger.CompTG, "handler.error",
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}
