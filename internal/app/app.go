// Package app assembles the bot: database, access store, upload
// aggregator, features and the Telegram routes.
package app

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/bootstrap"
	"github.com/m3rciful/vcfbot/core/buildinfo"
	corecmd "github.com/m3rciful/vcfbot/core/cmd"
	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/logger"
	tg "github.com/m3rciful/vcfbot/core/telegram"
	"github.com/m3rciful/vcfbot/core/telegram/router"
	"github.com/m3rciful/vcfbot/internal/access"
	"github.com/m3rciful/vcfbot/internal/features"
	"github.com/m3rciful/vcfbot/internal/upload"
)

// App owns the long-lived resources of a running bot.
type App struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result
	store *access.Store
	bot   *features.Bot
}

var _ corecmd.App = (*App)(nil)

// Bootstrap initializes logging and the database and opens the access store.
func Bootstrap(cfg *coreconfig.Config) (corecmd.App, error) {
	infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	store := access.NewStore(infra.DB, access.Options{
		Trial:   time.Duration(cfg.Bot.TrialMinutes) * time.Minute,
		IsOwner: cfg.IsOwner,
	})
	logger.Info(logger.Background(), logger.CompApp, "bootstrap",
		slog.String("version", buildinfo.String()),
		slog.String("db", cfg.Database.Path),
		slog.Int("trial_minutes", cfg.Bot.TrialMinutes),
		slog.Duration("upload_idle", cfg.Bot.UploadIdle()),
	)
	return &App{cfg: cfg, infra: infra, store: store}, nil
}

// Close releases the database.
func (a *App) Close() error { return a.infra.Close() }

// TelegramRunOptions describes the middlewares and the late wiring that
// needs the live bot.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, onLimited),
		Wire:        a.wire,
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			logger.Info(ctx, logger.CompApp, "stop", slog.String("version", buildinfo.String()))
			return nil
		},
	}, nil
}

func (a *App) wire(rt tg.Runtime) ([]tg.Route, error) {
	messenger := upload.TelegramMessenger{API: rt.Bot, Dispatcher: rt.Dispatcher}
	agg := upload.New(upload.Options{
		Messenger: messenger,
		Idle:      a.cfg.Bot.UploadIdle(),
		Tail:      a.cfg.Bot.PreviewTail,
	})
	gate := access.NewGate(a.store, access.GateOptions{
		Members:         access.TelegramMembers{API: rt.Bot},
		RequiredChannel: a.cfg.Bot.RequiredChannel,
		RequiredGroup:   a.cfg.Bot.RequiredGroup,
		OwnerContact:    a.cfg.Bot.OwnerContact,
	})
	a.bot = features.New(features.Options{
		Messenger:  messenger,
		Downloader: messenger,
		Aggregator: agg,
		Gate:       gate,
		Config:     a.cfg.Bot,
		IsOwner:    a.cfg.IsOwner,
	})
	a.bot.Register(rt.Registry)

	routes := router.CommandRoutes(rt.Registry, router.CommandRouteOptions{
		IsOwner: a.cfg.IsOwner,
		OnOwnerReject: func(c tele.Context) error {
			return c.Send("❌ Akses ditolak. Hanya owner yang dapat menggunakan perintah ini.")
		},
	})
	routes = append(routes, router.CallbackRoute(rt.Registry, router.CallbackOptions{
		NotFound: a.bot.UnknownCallback(),
	}))
	routes = append(routes, router.TextRoutes(a.bot, rt.Registry, router.TextOptions{
		UnknownText:     a.bot.UnknownText(),
		UnknownDocument: a.bot.UnknownDocument(),
	})...)

	logger.Info(logger.Background(), logger.CompWire, "wired",
		slog.Int("routes", len(routes)),
		slog.Int("callbacks", len(rt.Registry.Callbacks())),
		slog.Bool("join_gate", gate.Channel() != "" || gate.Group() != ""),
	)
	return routes, nil
}

func onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "⏳ Terlalu cepat, coba lagi sebentar."})
	}
	return nil
}
