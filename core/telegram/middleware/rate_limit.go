package middleware

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds (see UpdateKind) that are never limited.
	Exclude []string
	// Exempt users, typically the owners, are never limited.
	Exempt    func(userID int64) bool
	OnLimited tele.HandlerFunc
}

// UpdateKind classifies an update: "callback", "document", "message",
// "inline_query" or "other".
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && upd.Message.Document != nil:
		return "document"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// limiter remembers when each user was last let through. Entries older
// than the interval are swept at most once per sweepEvery.
type limiter struct {
	mu        sync.Mutex
	interval  time.Duration
	seen      map[int64]time.Time
	lastSweep time.Time
}

const sweepEvery = time.Minute

func newLimiter(interval time.Duration) *limiter {
	return &limiter{interval: interval, seen: make(map[int64]time.Time)}
}

func (l *limiter) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= sweepEvery {
		for id, at := range l.seen {
			if now.Sub(at) >= l.interval {
				delete(l.seen, id)
			}
		}
		l.lastSweep = now
	}
	if last, ok := l.seen[userID]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.seen[userID] = now
	return true
}

// RateLimitMiddleware drops updates that follow the previous one of the
// same user too closely.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	l := newLimiter(opts.Interval)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			u := c.Sender()
			if u == nil || opts.Interval <= 0 || (opts.Exempt != nil && opts.Exempt(u.ID)) {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if slices.Contains(opts.Exclude, kind) || l.allow(u.ID, time.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.rate_limit", slog.String("kind", kind))
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
