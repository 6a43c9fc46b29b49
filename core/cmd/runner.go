// Package cmd is the process entry point: load config, bootstrap, serve
// until a signal arrives, then release everything in reverse order.
package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/logger"
	coretelegram "github.com/m3rciful/vcfbot/core/telegram"
)

// App is what a bootstrapped bot hands back to the runner.
type App interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
	Close() error
}

// Options wire Run. Only Bootstrap is required.
type Options struct {
	// ConfigEnvVar names the variable holding the YAML path
	// (CONFIG_PATH by default); DefaultConfigPath is used when it is unset.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(cfg *coreconfig.Config) (App, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// Run blocks until SIGINT or SIGTERM.
func Run(opts Options) error {
	if opts.Bootstrap == nil {
		return errors.New("cmd: Bootstrap is required")
	}
	path := configPath(opts)
	log.Printf("loading config: %s", path)
	load := opts.LoadConfig
	if load == nil {
		load = coreconfig.Load
	}
	cfg, err := load(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}

	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn(logger.Background(), logger.CompApp, "close", slog.String("err", err.Error()))
		}
	}()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	withLifecycleLogs(&runOpts, time.Now())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

func configPath(opts Options) string {
	return cmp.Or(os.Getenv(cmp.Or(opts.ConfigEnvVar, "CONFIG_PATH")), opts.DefaultConfigPath, "config.yaml")
}

// withLifecycleLogs logs "ready" after the app's OnStart and "shutdown"
// before its OnStop.
func withLifecycleLogs(o *coretelegram.RunOptions, startedAt time.Time) {
	onStart, onStop := o.OnStart, o.OnStop
	o.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, logger.CompApp, "ready",
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}
	o.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, logger.CompApp, "shutdown")
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}
