package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds transport settings and the owner accounts.
type TelegramConfig struct {
	Token    string  `yaml:"token" envconfig:"BOT_TOKEN"`
	OwnerIDs []int64 `yaml:"owner_ids" envconfig:"OWNER_IDS"`
	RunMode  string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile is "debug", "dev" or "prod"; debug and dev default to kv output.
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DatabaseConfig points at the sqlite file holding users and subscriptions.
type DatabaseConfig struct {
	Path          string `yaml:"path" envconfig:"DB_PATH"`
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
}

// BotConfig carries the conversion and access rules of the bot.
type BotConfig struct {
	UploadIdleMS    int    `yaml:"upload_idle_ms" envconfig:"UPLOAD_IDLE_MS"`
	PreviewTail     int    `yaml:"preview_tail"`
	MaxFilesV2      int    `yaml:"max_files_v2"`
	MaxFileBytes    int64  `yaml:"max_file_bytes"`
	MaxContentChars int    `yaml:"max_content_chars"`
	MaxPhones       int    `yaml:"max_phones"`
	MaxFormatChars  int    `yaml:"max_format_chars"`
	SendDelayMS     int    `yaml:"send_delay_ms"`
	TrialMinutes    int    `yaml:"trial_minutes" envconfig:"TRIAL_MINUTES"`
	Timezone        string `yaml:"timezone" envconfig:"TIMEZONE"`
	RequiredChannel string `yaml:"required_channel" envconfig:"REQUIRED_CHANNEL"`
	RequiredGroup   string `yaml:"required_group" envconfig:"REQUIRED_GROUP"`
	OwnerContact    string `yaml:"owner_contact" envconfig:"OWNER_CONTACT"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateDocument identifies document uploads for rate limit exclusions.
	UpdateDocument = "document"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates lists update kinds that bypass the limiter: "callback",
// "message" or "document". Uploads arrive in bursts, so documents are
// usually excluded.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates every section of config.yaml.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Bot       BotConfig       `yaml:"bot"`
}

// Load reads an optional .env file, the YAML file at path and then the
// environment. A missing YAML file is not an error: everything can come
// from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram token is required")
	}
	if err := normalizeRunMode(cfg); err != nil {
		return err
	}
	if err := normalizeRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	normalizeDatabase(&cfg.Database)
	return normalizeBot(&cfg.Bot)
}

func normalizeRunMode(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return errors.New("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return errors.New("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return errors.New("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	allowed := []string{UpdateCallback, UpdateMessage, UpdateDocument}
	for i, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: %s", v, strings.Join(allowed, ", "))
		}
		rl.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeDatabase(db *DatabaseConfig) {
	if strings.TrimSpace(db.Path) == "" {
		db.Path = "data/bot.db"
	}
	if strings.TrimSpace(db.MigrationsDir) == "" {
		db.MigrationsDir = "migrations"
	}
	if db.MaxOpenConns <= 0 {
		db.MaxOpenConns = 1
	}
}

func normalizeBot(b *BotConfig) error {
	defaultInt(&b.UploadIdleMS, 3000)
	defaultInt(&b.PreviewTail, 15)
	defaultInt(&b.MaxFilesV2, 10)
	defaultInt(&b.MaxContentChars, 5*1024*1024)
	defaultInt(&b.MaxPhones, 50000)
	defaultInt(&b.MaxFormatChars, 200000)
	defaultInt(&b.TrialMinutes, 30)
	if b.MaxFileBytes <= 0 {
		b.MaxFileBytes = 20 * 1024 * 1024
	}
	if b.SendDelayMS < 0 {
		return errors.New("bot.send_delay_ms must be >= 0")
	}
	if strings.TrimSpace(b.Timezone) == "" {
		b.Timezone = "Asia/Jakarta"
	}
	b.RequiredChannel = atHandle(b.RequiredChannel)
	b.RequiredGroup = atHandle(b.RequiredGroup)
	b.OwnerContact = atHandle(b.OwnerContact)
	return nil
}

func defaultInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func atHandle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "@") {
		return s
	}
	return "@" + s
}

// IsOwner reports whether userID is one of the configured owners.
func (c *Config) IsOwner(userID int64) bool {
	return c != nil && slices.Contains(c.Telegram.OwnerIDs, userID)
}

// UploadIdle is the debounce window after the last upload of a batch.
func (b BotConfig) UploadIdle() time.Duration {
	return time.Duration(b.UploadIdleMS) * time.Millisecond
}

// SendDelay is the pause between consecutive output files.
func (b BotConfig) SendDelay() time.Duration {
	return time.Duration(b.SendDelayMS) * time.Millisecond
}

// Location resolves the display timezone, falling back to UTC+7 (WIB).
func (b BotConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(b.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("WIB", 7*60*60)
}
