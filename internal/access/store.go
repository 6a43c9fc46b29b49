// Package access keeps users, trials and paid subscriptions in sqlite and
// decides whether a user may use the bot.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/vcfbot/core/logger"
)

// Subscription is a paid plan row.
type Subscription struct {
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	Plan      Plan   `db:"plan"`
	ExpiresAt int64  `db:"expires_at"`
}

// Active reports whether the subscription grants access at now.
func (s Subscription) Active(now time.Time) bool {
	return s.Plan == PlanPermanent || s.ExpiresAt > now.Unix()
}

// User is the per-user row holding the one-time trial.
type User struct {
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	TrialEnd  int64  `db:"trial_end"`
	PaidUntil int64  `db:"paid_until"`
}

// StatusKind is the unified access status.
type StatusKind string

const (
	StatusOwner     StatusKind = "owner"
	StatusPermanent StatusKind = "permanent"
	StatusDay       StatusKind = "day"
	StatusWeek      StatusKind = "week"
	StatusMonth     StatusKind = "month"
	StatusTrial     StatusKind = "trial"
	StatusExpired   StatusKind = "expired"
)

// Status is what GetUnifiedStatus resolves for a user.
type Status struct {
	Kind        StatusKind
	ExpiresAt   time.Time
	SecondsLeft int64
}

// Allowed reports whether the status grants feature access.
func (s Status) Allowed() bool { return s.Kind != StatusExpired && s.Kind != "" }

// Options configure a Store.
type Options struct {
	Trial   time.Duration
	IsOwner func(userID int64) bool
	Now     func() time.Time
}

// Store is the sqlx-backed access store.
type Store struct {
	db      *sqlx.DB
	trial   time.Duration
	isOwner func(int64) bool
	now     func() time.Time
}

// NewStore wraps an opened and migrated database.
func NewStore(db *sqlx.DB, opts Options) *Store {
	if opts.Trial <= 0 {
		opts.Trial = 30 * time.Minute
	}
	if opts.IsOwner == nil {
		opts.IsOwner = func(int64) bool { return false }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{db: db, trial: opts.Trial, isOwner: opts.IsOwner, now: opts.Now}
}

// IsOwner reports whether userID bypasses every access check.
func (s *Store) IsOwner(userID int64) bool { return s.isOwner(userID) }

// GetOrCreateUser returns the user row, creating it with a fresh trial on
// first sight. A non-empty username refreshes the stored one.
func (s *Store) GetOrCreateUser(ctx context.Context, userID int64, username string) (User, error) {
	trialEnd := s.now().Add(s.trial).Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, trial_end, paid_until)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(user_id) DO UPDATE SET
			username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END`,
		userID, strings.TrimSpace(username), trialEnd)
	if err != nil {
		return User{}, fmt.Errorf("upsert user %d: %w", userID, err)
	}
	var u User
	if err := s.db.GetContext(ctx, &u,
		`SELECT user_id, username, trial_end, paid_until FROM users WHERE user_id = ?`, userID); err != nil {
		return User{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	return u, nil
}

// GetSubscription returns the subscription of userID, if any.
func (s *Store) GetSubscription(ctx context.Context, userID int64) (Subscription, bool, error) {
	var sub Subscription
	err := s.db.GetContext(ctx, &sub,
		`SELECT user_id, username, plan, expires_at FROM subscriptions WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, false, nil
	}
	if err != nil {
		return Subscription{}, false, fmt.Errorf("load subscription %d: %w", userID, err)
	}
	return sub, true, nil
}

// UpsertSubscription grants plan to userID starting now and mirrors the
// expiry into users.paid_until.
func (s *Store) UpsertSubscription(ctx context.Context, userID int64, username string, plan Plan) (Subscription, error) {
	if _, ok := ParsePlan(string(plan)); !ok {
		return Subscription{}, fmt.Errorf("unknown plan %q", plan)
	}
	sub := Subscription{UserID: userID, Username: strings.TrimSpace(username), Plan: plan}
	if d := plan.Duration(); d > 0 {
		sub.ExpiresAt = s.now().Add(d).Unix()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Subscription{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO subscriptions (user_id, username, plan, expires_at)
		VALUES (:user_id, :username, :plan, :expires_at)
		ON CONFLICT(user_id) DO UPDATE SET
			username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE subscriptions.username END,
			plan = excluded.plan,
			expires_at = excluded.expires_at`, sub); err != nil {
		return Subscription{}, fmt.Errorf("upsert subscription %d: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (user_id, username, trial_end, paid_until)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(user_id) DO UPDATE SET paid_until = excluded.paid_until`,
		userID, sub.Username, sub.ExpiresAt); err != nil {
		return Subscription{}, fmt.Errorf("sync paid_until %d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return Subscription{}, fmt.Errorf("commit: %w", err)
	}

	logger.Info(ctx, logger.CompAccess, "access.subscription_saved",
		slog.Int64("target_id", userID),
		slog.String("plan", string(plan)),
		slog.Int64("expires_at", sub.ExpiresAt),
	)
	return sub, nil
}

// DeleteSubscription removes the plan of userID. It reports whether a row existed.
func (s *Store) DeleteSubscription(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete subscription %d: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET paid_until = 0 WHERE user_id = ?`, userID); err != nil {
		return n > 0, fmt.Errorf("reset paid_until %d: %w", userID, err)
	}
	logger.Info(ctx, logger.CompAccess, "access.subscription_deleted",
		slog.Int64("target_id", userID),
		slog.Bool("existed", n > 0),
	)
	return n > 0, nil
}

// ListSubscriptions returns every subscription ordered by user id.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	if err := s.db.SelectContext(ctx, &subs,
		`SELECT user_id, username, plan, expires_at FROM subscriptions ORDER BY user_id ASC`); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// GetUnifiedStatus resolves owner, then an active subscription, then the
// trial, else expired. It creates the user row (and trial) when missing.
func (s *Store) GetUnifiedStatus(ctx context.Context, userID int64, username string) (Status, error) {
	if s.isOwner(userID) {
		return Status{Kind: StatusOwner}, nil
	}
	now := s.now()

	sub, ok, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if ok && sub.Active(now) {
		if sub.Plan == PlanPermanent {
			return Status{Kind: StatusPermanent}, nil
		}
		return until(StatusKind(sub.Plan), sub.ExpiresAt, now), nil
	}

	u, err := s.GetOrCreateUser(ctx, userID, username)
	if err != nil {
		return Status{}, err
	}
	if u.TrialEnd > now.Unix() {
		return until(StatusTrial, u.TrialEnd, now), nil
	}
	return Status{Kind: StatusExpired}, nil
}

func until(kind StatusKind, unix int64, now time.Time) Status {
	at := time.Unix(unix, 0)
	return Status{Kind: kind, ExpiresAt: at, SecondsLeft: unix - now.Unix()}
}

// HumanLeft renders a remaining duration as "Xj Ym", "Xj" or "Ym".
func HumanLeft(seconds int64) string {
	if seconds <= 0 {
		return "0m"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dj %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dj", h)
	}
	return fmt.Sprintf("%dm", m)
}
