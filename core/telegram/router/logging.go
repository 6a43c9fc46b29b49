package router

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
	"github.com/m3rciful/vcfbot/core/telegram/middleware"
)

// Outcomes of a handler.handled line.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeFail     = "fail"
	outcomeSkip     = "skip"
)

type (
	coder    interface{ ErrCode() string }
	rejecter interface{ Rejected() bool }
)

// handled runs fn under name and writes one handler.handled line for it.
func handled(c tele.Context, name string, fn func() error, extra ...slog.Attr) error {
	start := time.Now()
	tghelpers.WithHandler(c, name)
	err := fn()
	summarize(c, name, start, outcomeOf(err), err, extra...)
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	var r rejecter
	if errors.As(err, &r) && r.Rejected() {
		return outcomeRejected
	}
	return outcomeFail
}

func summarize(c tele.Context, name string, start time.Time, outcome string, err error, extra ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, name)
	msgs, kb := middleware.GetCounters(c)
	status := "ok"
	if outcome == outcomeFail {
		status = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", name),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	attrs = append(attrs, extra...)
	level := slog.LevelInfo
	if outcome == outcomeFail {
		level = slog.LevelWarn
	}
	logger.LogEvent(ctx, logger.Component(logger.CompTG), level, "handler.handled", attrs...)
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		return "unknown"
	}
	return strings.Join(strings.Fields(key), "_")
}

// errorCode is the upper-cased code of the first coded error in the
// chain, or UNCODED.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.ErrCode()); code != "" {
			return strings.ToUpper(strings.Join(strings.Fields(code), "_"))
		}
	}
	return "UNCODED"
}
