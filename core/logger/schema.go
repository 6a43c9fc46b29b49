package logger

import "strings"

// Component names used across the bot.
const (
	CompApp     = "app"
	CompDB      = "db"
	CompMigrate = "db.migrate"
	CompTG      = "tg"
	CompWire    = "tg.wire"
	CompSender  = "tg.sender"
	CompAccess  = "access"
	CompUpload  = "upload"
	CompConvert = "convert"
)

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// Unknown outcomes are dropped from records.
var knownOutcome = map[string]bool{
	"ok":           true,
	"rejected":     true,
	"fail":         true,
	"skip":         true,
	"noop":         true,
	"cancelled":    true,
	"rate_limited": true,
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if name, ok := levelNames[strings.ToLower(level)]; ok {
		return name
	}
	return strings.ToUpper(level)
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"feature",
	"cb_key",
	"action",
	"endpoint",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"token",
	"phase",
	"file",
	"files",
	"items",
	"unit",
	"plan",
	"kind",
	"seconds_left",
	"target",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"driver",
	"path",
	"err",
	"err_code",
	"cause",
	"retryable",
	"error",
	"error_kind",
	"attempt",
	"attempts",
	"delay_ms",
	"elapsed_ms",
	"backoff_ms",
	"rate_limited",
}
