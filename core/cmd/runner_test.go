package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
	coretelegram "github.com/m3rciful/vcfbot/core/telegram"
)

type fakeApp struct {
	closed bool
	events *[]string
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error {
			*a.events = append(*a.events, "start")
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			*a.events = append(*a.events, "stop")
			return nil
		},
	}, nil
}

func (a *fakeApp) Close() error { a.closed = true; return nil }

func TestConfigPath(t *testing.T) {
	t.Setenv("VCFBOT_CONFIG", "")
	if got := configPath(Options{ConfigEnvVar: "VCFBOT_CONFIG"}); got != "config.yaml" {
		t.Fatalf("default = %q", got)
	}
	if got := configPath(Options{ConfigEnvVar: "VCFBOT_CONFIG", DefaultConfigPath: "bot.yaml"}); got != "bot.yaml" {
		t.Fatalf("fallback = %q", got)
	}
	t.Setenv("VCFBOT_CONFIG", "/etc/vcfbot.yaml")
	if got := configPath(Options{ConfigEnvVar: "VCFBOT_CONFIG", DefaultConfigPath: "bot.yaml"}); got != "/etc/vcfbot.yaml" {
		t.Fatalf("env = %q", got)
	}
}

func TestRunWrapsHooksAndCloses(t *testing.T) {
	var events []string
	app := &fakeApp{events: &events}
	err := Run(Options{
		LoadConfig:     func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap:      func(*coreconfig.Config) (App, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, o coretelegram.RunOptions) error {
			if err := o.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return o.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0] != "start" || events[1] != "stop" {
		t.Fatalf("events = %v", events)
	}
	if !app.closed {
		t.Fatal("app was not closed")
	}
}

func TestRunStopsOnConfigError(t *testing.T) {
	boom := errors.New("bad yaml")
	booted := false
	err := Run(Options{
		LoadConfig: func(string) (*coreconfig.Config, error) { return nil, boom },
		Bootstrap:  func(*coreconfig.Config) (App, error) { booted = true; return nil, nil },
	})
	if !errors.Is(err, boom) || booted {
		t.Fatalf("err = %v booted = %v", err, booted)
	}
}
