// Package uploadtest provides a manual clock/scheduler and a recording
// messenger for tests of the upload flow and the features built on it.
package uploadtest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/internal/upload"
)

// Scheduler is a manual clock and scheduler. Timers fire only from Advance,
// on the calling goroutine.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*Timer
}

// NewScheduler starts the manual clock at a fixed instant.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Timer is a pending call created by AfterFunc.
type Timer struct {
	s       *Scheduler
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

// Stop cancels the timer; it reports whether the timer was still pending.
func (t *Timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Stopped reports whether Stop cancelled the timer before it fired.
func (t *Timer) Stopped() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.stopped
}

// Fired reports whether the timer ran.
func (t *Timer) Fired() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.fired
}

// Now implements upload.Clock.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc implements upload.Scheduler.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) upload.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Timer{s: s, at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	return t
}

// Timers returns every timer created so far, oldest first.
func (s *Scheduler) Timers() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Timer(nil), s.timers...)
}

// Pending counts timers that are neither stopped nor fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in order.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var due []*Timer
		for _, t := range s.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		if next.at.After(s.now) {
			s.now = next.at
		}
		s.mu.Unlock()
		next.f()
	}
}

// Message is one message recorded by Messenger.
type Message struct {
	Handle upload.Handle
	Text   string
	Markup *tele.ReplyMarkup
}

// Edit is one recorded edit.
type Edit struct {
	Handle upload.Handle
	Text   string
	Markup *tele.ReplyMarkup
}

// Doc is one recorded file.
type Doc struct {
	ChatID  int64
	Name    string
	Data    []byte
	Caption string
}

// Messenger records everything sent through it. The Err hooks, when set,
// decide the outcome of the next calls.
type Messenger struct {
	mu     sync.Mutex
	nextID int
	Sent   []Message
	Edits  []Edit
	Files  []Doc

	EditErr func(upload.Handle) error
	SendErr func(text string) error
	FileErr func(name string) error
}

// Send implements upload.Messenger.
func (m *Messenger) Send(_ context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (upload.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		if err := m.SendErr(text); err != nil {
			return upload.Handle{}, err
		}
	}
	m.nextID++
	h := upload.Handle{ChatID: chatID, MessageID: m.nextID}
	m.Sent = append(m.Sent, Message{Handle: h, Text: text, Markup: markup})
	return h, nil
}

// Edit implements upload.Messenger. Editing with identical text and no
// markup returns upload.ErrNotModified, as Telegram does.
func (m *Messenger) Edit(_ context.Context, h upload.Handle, text string, markup *tele.ReplyMarkup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		if err := m.EditErr(h); err != nil {
			return err
		}
	}
	if markup == nil && m.textOf(h) == text {
		return upload.ErrNotModified
	}
	m.Edits = append(m.Edits, Edit{Handle: h, Text: text, Markup: markup})
	return nil
}

func (m *Messenger) textOf(h upload.Handle) string {
	for i := len(m.Edits) - 1; i >= 0; i-- {
		if m.Edits[i].Handle == h {
			return m.Edits[i].Text
		}
	}
	for _, s := range m.Sent {
		if s.Handle == h {
			return s.Text
		}
	}
	return ""
}

// SendFile implements upload.Messenger.
func (m *Messenger) SendFile(_ context.Context, chatID int64, name string, data []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FileErr != nil {
		if err := m.FileErr(name); err != nil {
			return err
		}
	}
	m.Files = append(m.Files, Doc{ChatID: chatID, Name: name, Data: append([]byte(nil), data...), Caption: caption})
	return nil
}

// Current returns the latest text of the message h.
func (m *Messenger) Current(h upload.Handle) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textOf(h)
}

// LastSent returns the most recent sent message.
func (m *Messenger) LastSent() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return Message{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}

// SentContaining returns the sent messages whose text contains sub.
func (m *Messenger) SentContaining(sub string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, s := range m.Sent {
		if strings.Contains(s.Text, sub) {
			out = append(out, s)
		}
	}
	return out
}

// Counts returns how many messages, edits and files were recorded.
func (m *Messenger) Counts() (sent, edits, files int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent), len(m.Edits), len(m.Files)
}

// ErrBroken is a convenient transport failure for tests.
var ErrBroken = errors.New("transport broken")
