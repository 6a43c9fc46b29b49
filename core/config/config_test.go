package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadOverlaysEnvOnYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `telegram:
  token: file-token
  owner_ids: [1]
rate_limit:
  exclude_updates: [" Document "]
bot:
  upload_idle_ms: 1500
  required_channel: kontakku
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("OWNER_IDS", "7,8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, env must win", cfg.Telegram.Token)
	}
	if !cfg.IsOwner(8) || cfg.IsOwner(1) {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerIDs)
	}
	if cfg.Bot.UploadIdle() != 1500*time.Millisecond {
		t.Fatalf("idle = %v", cfg.Bot.UploadIdle())
	}
	if cfg.Bot.RequiredChannel != "@kontakku" {
		t.Fatalf("channel = %q", cfg.Bot.RequiredChannel)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll || cfg.Database.Path != "data/bot.db" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Telegram, cfg.Database)
	}
	if got := cfg.RateLimit.ExcludeUpdates; len(got) != 1 || got[0] != UpdateDocument {
		t.Fatalf("exclude = %q", got)
	}
}

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "only-env")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "only-env" || cfg.Bot.PreviewTail != 15 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]struct {
		cfg  Config
		want string
	}{
		"no token": {Config{}, "token is required"},
		"webhook without url": {Config{
			Telegram: TelegramConfig{Token: "t", RunMode: "webhook"},
		}, "webhook.url"},
		"bad mode": {Config{
			Telegram: TelegramConfig{Token: "t", RunMode: "push"},
		}, "invalid telegram.run_mode"},
		"bad exclude": {Config{
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"sticker"}},
		}, "exclude_updates"},
		"negative delay": {Config{
			Telegram: TelegramConfig{Token: "t"},
			Bot:      BotConfig{SendDelayMS: -1},
		}, "send_delay_ms"},
	}
	for name, tc := range cases {
		err := Normalize(&tc.cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want %q", name, err, tc.want)
		}
	}
}

func TestLocationFallsBackToWIB(t *testing.T) {
	loc := BotConfig{Timezone: "Nowhere/Atlantis"}.Location()
	if _, off := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone(); off != 7*60*60 {
		t.Fatalf("offset = %d", off)
	}
}
