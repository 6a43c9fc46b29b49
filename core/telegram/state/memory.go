package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/vcfbot/core/logger"
)

// Manager is an in-memory session store plus the per-feature handler table.
type Manager[In any] struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	handlers map[string]Handler[In]
	now      func() time.Time
}

// NewManager constructs an empty Manager.
func NewManager[In any]() *Manager[In] {
	return &Manager[In]{
		sessions: make(map[int64]Session),
		handlers: make(map[string]Handler[In]),
		now:      time.Now,
	}
}

// Handle associates a feature with the handler of its follow-up input.
func (m *Manager[In]) Handle(feature string, h Handler[In]) {
	if h == nil || feature == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[feature] = h
}

// Get returns the session of a user.
func (m *Manager[In]) Get(userID int64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Set starts (or restarts) a conversation for feature at step.
func (m *Manager[In]) Set(userID int64, feature string, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = Session{Feature: feature, Step: step, Since: m.now()}
}

// Advance moves the user to step if they are still in feature. It reports
// whether the session was updated.
func (m *Manager[In]) Advance(userID int64, feature string, step Step) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok || s.Feature != feature {
		return false
	}
	s.Step = step
	m.sessions[userID] = s
	return true
}

// Clear removes the conversation of a user and returns what it held.
func (m *Manager[In]) Clear(userID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	return s, ok
}

// ClearIf removes the conversation only while it still belongs to feature.
func (m *Manager[In]) ClearIf(userID int64, feature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok && s.Feature == feature {
		delete(m.sessions, userID)
		return true
	}
	return false
}

// InProgress reports whether the user has an active conversation.
func (m *Manager[In]) InProgress(userID int64) bool {
	_, ok := m.Get(userID)
	return ok
}

// Dispatch runs the handler of the user's feature. ok is false when the
// user has no session or the feature registered no handler.
func (m *Manager[In]) Dispatch(ctx context.Context, userID int64, in In) (ok bool, err error) {
	m.mu.RLock()
	s, has := m.sessions[userID]
	h := m.handlers[s.Feature]
	m.mu.RUnlock()
	if !has || h == nil {
		return false, nil
	}
	logger.Debug(ctx, logger.CompTG, "fsm.dispatch",
		slog.String("feature", s.Feature),
		slog.String("step", s.StepName()),
	)
	return true, h(in, s)
}
