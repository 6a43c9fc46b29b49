package middleware

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
)

// LoggerMiddleware prepares the logging context of an update and logs its
// receipt at debug level. Text is summarized by size only; users paste
// phone lists.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := withCounters(tghelpers.BuildContext(c), countersOf(c))
		tghelpers.StoreContext(c, ctx)
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Component(logger.CompTG), slog.LevelDebug, "update.received", receipt(c)...)
		}
		return next(c)
	}
}

func receipt(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{slog.String("kind", UpdateKind(upd))}
	if ch := c.Chat(); ch != nil {
		attrs = append(attrs, slog.String("chat_type", string(ch.Type)))
	}
	if u := c.Sender(); u != nil && u.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.Parse(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 64)),
			slog.Int("payload_len", len(payload)),
		)
	case upd.Message != nil && upd.Message.Document != nil:
		doc := upd.Message.Document
		attrs = append(attrs,
			slog.String("file", logger.SanitizeLimit(doc.FileName, 128)),
			slog.Int64("size", int64(doc.FileSize)),
		)
	case upd.Message != nil:
		text := upd.Message.Text
		if strings.HasPrefix(text, "/") {
			attrs = append(attrs, slog.String("command", logger.SanitizeLimit(strings.Fields(text)[0], 64)))
			break
		}
		attrs = append(attrs,
			slog.Int("text_len", utf8.RuneCountInString(text)),
			slog.Int("lines", strings.Count(text, "\n")+1),
		)
	}
	return attrs
}
