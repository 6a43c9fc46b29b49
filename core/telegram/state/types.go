package state

import "time"

// Step is a point inside a feature conversation. Features declare their
// own closed set of step types and switch on them.
type Step interface {
	StepName() string
}

// Session is the active conversation of a user.
type Session struct {
	Feature string
	Step    Step
	Since   time.Time
}

// Idle reports whether s holds no conversation.
func (s Session) Idle() bool { return s.Feature == "" }

// StepName returns the step name, or "idle".
func (s Session) StepName() string {
	if s.Step == nil {
		return "idle"
	}
	return s.Step.StepName()
}

// Handler processes input of type In for a user with an active session.
type Handler[In any] func(in In, s Session) error
