// Package upload collects the documents a user sends for one feature into a
// batch, keeps a single live summary message up to date and finalizes the
// batch once uploads stop for an idle window.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/internal/apperr"
)

// ErrNotModified is what a Messenger returns when an edit would not change
// the message. The aggregator treats it as success.
var ErrNotModified = errors.New("message is not modified")

// Key scopes a batch to one chat and one feature.
type Key struct {
	ChatID  int64
	Feature string
}

// Handle identifies a sent message.
type Handle struct {
	ChatID    int64
	MessageID int
}

// Zero reports whether h points at no message.
func (h Handle) Zero() bool { return h.MessageID == 0 }

// Messenger is the part of the chat transport the aggregator and the
// features talk to. Text is Markdown.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (Handle, error)
	Edit(ctx context.Context, h Handle, text string, markup *tele.ReplyMarkup) error
	SendFile(ctx context.Context, chatID int64, name string, data []byte, caption string) error
}

// File is one accepted upload.
type File struct {
	Name    string
	Content string
	Count   int
	Size    int64
}

// Batch is a snapshot of the files collected for a key.
type Batch struct {
	Token        string
	Key          Key
	Files        []File
	Preview      Handle
	LastActivity time.Time
}

// Total sums the per-file counts.
func (b Batch) Total() int { return totalCount(b.Files) }

// Contents returns the decoded text of every file in upload order.
func (b Batch) Contents() []string {
	out := make([]string, len(b.Files))
	for i, f := range b.Files {
		out[i] = f.Content
	}
	return out
}

// Rules describe what a feature accepts and what happens at finalize.
type Rules struct {
	Feature string
	// Title heads the summary message; a default is used when empty.
	Title string
	// Accept lists lower-case extensions with the dot; empty accepts anything.
	Accept []string
	// Unit names what Measure counts ("nomor", "kontak"); empty hides counts.
	Unit    string
	Measure func(name, content string) int

	MaxFiles int
	MaxBytes int64
	MaxChars int
	MaxItems int

	// Replace keeps only the latest upload.
	Replace bool
	// Reentry lets an upload after finalize open a fresh batch.
	Reentry bool
	// NameOnly skips decoding; only file names are collected.
	NameOnly bool

	// Actions builds the buttons attached to the final summary.
	Actions func(token string) *tele.ReplyMarkup
	// OnFinal runs once the batch is frozen, usually to prompt for the
	// follow-up input.
	OnFinal func(ctx context.Context, b Batch) error
}

// Phase is where a batch is in its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIntake
	PhaseFinalizing
	PhaseAwaitingAction
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIntake:
		return "intake"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseAwaitingAction:
		return "awaiting_action"
	case PhaseCompleted:
		return "completed"
	}
	return "idle"
}

// Receipt reports an accepted upload.
type Receipt struct {
	Token     string
	File      File
	Index     int
	Files     int
	Total     int
	Restarted bool
}

// Options configure an Aggregator. Zero values get production defaults.
type Options struct {
	Messenger Messenger
	Clock     Clock
	Scheduler Scheduler
	Idle      time.Duration
	Tail      int
	NewToken  func() string
}

type entry struct {
	mu    sync.Mutex
	key   Key
	rules Rules
	ctx   context.Context

	token   string
	files   []File
	preview Handle
	last    time.Time
	phase   Phase
	seq     uint64
	timer   Timer
	dead    bool
}

// Aggregator owns every open batch. Each (chat, feature) entry has its own
// lock held across preview I/O, so uploads of one conversation are handled
// one at a time and in arrival order.
type Aggregator struct {
	msg      Messenger
	clock    Clock
	sched    Scheduler
	idle     time.Duration
	tail     int
	newToken func() string

	mu      sync.Mutex
	entries map[Key]*entry
	finals  map[string]Batch
}

// New builds an Aggregator.
func New(opts Options) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = systemScheduler{}
	}
	if opts.Idle <= 0 {
		opts.Idle = 3 * time.Second
	}
	if opts.Tail <= 0 {
		opts.Tail = 15
	}
	if opts.NewToken == nil {
		opts.NewToken = uuid.NewString
	}
	return &Aggregator{
		msg:      opts.Messenger,
		clock:    opts.Clock,
		sched:    opts.Scheduler,
		idle:     opts.Idle,
		tail:     opts.Tail,
		newToken: opts.NewToken,
		entries:  make(map[Key]*entry),
		finals:   make(map[string]Batch),
	}
}

// Start opens intake for key, dropping any batch the key had, and returns
// the new batch token.
func (a *Aggregator) Start(ctx context.Context, key Key, rules Rules) string {
	if rules.Feature == "" {
		rules.Feature = key.Feature
	}
	e := &entry{
		key:   key,
		rules: rules,
		ctx:   context.WithoutCancel(ctx),
		token: a.newToken(),
		phase: PhaseIntake,
	}
	a.mu.Lock()
	old := a.entries[key]
	a.entries[key] = e
	a.mu.Unlock()

	if old != nil {
		a.retire(old)
	}
	logger.Debug(ctx, logger.CompUpload, "upload.start",
		slog.String("feature", key.Feature),
		slog.String("token", e.token),
	)
	return e.token
}

func (a *Aggregator) retire(e *entry) {
	e.mu.Lock()
	e.dead = true
	stopTimer(e)
	token := e.token
	e.mu.Unlock()

	a.mu.Lock()
	delete(a.finals, token)
	a.mu.Unlock()
}

func (a *Aggregator) lookup(key Key) *entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[key]
}

// Phase reports the lifecycle phase of the batch held for key.
func (a *Aggregator) Phase(key Key) Phase {
	e := a.lookup(key)
	if e == nil {
		return PhaseIdle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Precheck rejects a document before it is downloaded when its name or
// declared size already rule it out.
func (a *Aggregator) Precheck(key Key, name string, size int64) error {
	e := a.lookup(key)
	if e == nil {
		return apperr.StateMismatch(msgNothingPending)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return apperr.StateMismatch(msgNothingPending)
	}
	if e.phase != PhaseIntake && !e.rules.Reentry {
		return apperr.ErrRaceNoop
	}
	files := e.files
	if e.phase != PhaseIntake {
		files = nil
	}
	if err := checkName(e.rules, name); err != nil {
		return err
	}
	if e.rules.MaxBytes > 0 && size > e.rules.MaxBytes {
		return tooLarge(e.rules.MaxBytes)
	}
	if e.rules.Replace {
		return nil
	}
	return checkFileCount(e.rules, len(files))
}

const msgNothingPending = "❌ Tidak ada proses yang menunggu file. Ketik /start untuk mulai."

// Submit adds one uploaded document to the batch for key. A rejected file
// leaves the batch unchanged. After finalize the upload is ignored with
// apperr.ErrRaceNoop unless the feature allows re-entry, in which case it
// opens a new batch.
func (a *Aggregator) Submit(ctx context.Context, key Key, name string, data []byte) (Receipt, error) {
	e := a.lookup(key)
	if e == nil {
		return Receipt{}, apperr.StateMismatch(msgNothingPending)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead {
		return Receipt{}, apperr.StateMismatch(msgNothingPending)
	}
	restarted := e.phase != PhaseIntake
	if restarted && !e.rules.Reentry {
		logger.Debug(ctx, logger.CompUpload, "upload.late",
			slog.String("feature", key.Feature),
			slog.String("phase", e.phase.String()),
			slog.String("file", logger.SanitizeLimit(name, 128)),
		)
		return Receipt{}, apperr.ErrRaceNoop
	}

	f, err := a.accept(e, name, data)
	if err != nil {
		logger.Info(ctx, logger.CompUpload, "upload.rejected",
			slog.String("feature", key.Feature),
			slog.String("file", logger.SanitizeLimit(name, 128)),
			slog.String("err_code", errCode(err)),
		)
		return Receipt{}, err
	}
	if restarted {
		// The old token must stop resolving before the new one exists.
		a.mu.Lock()
		delete(a.finals, e.token)
		a.mu.Unlock()
		e.token = a.newToken()
		e.files = nil
		e.preview = Handle{}
		e.phase = PhaseIntake
	}

	if e.rules.Replace {
		e.files = e.files[:0]
	}
	f.Name = uniqueName(e.files, f.Name)
	e.files = append(e.files, f)
	e.last = a.clock.Now()
	e.seq++
	e.ctx = context.WithoutCancel(ctx)

	rcpt := Receipt{
		Token:     e.token,
		File:      f,
		Index:     len(e.files),
		Files:     len(e.files),
		Total:     totalCount(e.files),
		Restarted: restarted,
	}
	logger.Info(ctx, logger.CompUpload, "upload.accepted",
		slog.String("feature", key.Feature),
		slog.String("file", logger.SanitizeLimit(f.Name, 128)),
		slog.Int("files", rcpt.Files),
		slog.Int("items", f.Count),
	)

	renderErr := a.render(ctx, e, false, nil)
	a.arm(e)
	return rcpt, renderErr
}

func (a *Aggregator) accept(e *entry, name string, data []byte) (File, error) {
	r := e.rules
	if err := checkName(r, name); err != nil {
		return File{}, err
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return File{}, tooLarge(r.MaxBytes)
	}
	if !r.Replace {
		if err := checkFileCount(r, len(e.files)); err != nil {
			return File{}, err
		}
	}
	f := File{Name: name, Size: int64(len(data))}
	if r.NameOnly {
		return f, nil
	}
	text, err := Decode(data)
	if err != nil {
		return File{}, err
	}
	if strings.TrimSpace(text) == "" {
		return File{}, apperr.Validation("empty_file", fmt.Sprintf("❌ File `%s` kosong.", format.Code(name)))
	}
	if r.MaxChars > 0 && utf8.RuneCountInString(text) > r.MaxChars {
		return File{}, apperr.Capacity("too_many_chars",
			fmt.Sprintf("❌ Isi file terlalu besar (maks %d karakter).", r.MaxChars))
	}
	f.Content = text
	if r.Measure != nil {
		f.Count = r.Measure(name, text)
	}
	if r.MaxItems > 0 && f.Count > r.MaxItems {
		return File{}, apperr.Capacity("too_many_items",
			fmt.Sprintf("❌ Terlalu banyak data dalam satu file (maks %d %s).", r.MaxItems, r.Unit))
	}
	return f, nil
}

func checkName(r Rules, name string) error {
	if len(r.Accept) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	if slices.Contains(r.Accept, ext) {
		return nil
	}
	return apperr.Validation("bad_extension", "❌ Hanya menerima file "+strings.Join(r.Accept, " atau "))
}

func checkFileCount(r Rules, have int) error {
	if r.MaxFiles > 0 && have >= r.MaxFiles {
		return apperr.Capacity("too_many_files", fmt.Sprintf("❌ Maksimal %d file per proses.", r.MaxFiles))
	}
	return nil
}

func tooLarge(limit int64) error {
	return apperr.Capacity("file_too_large", fmt.Sprintf("❌ File terlalu besar (maks %d MB).", limit/(1024*1024)))
}

// uniqueName appends _N before the extension until name is unused.
func uniqueName(files []File, name string) string {
	taken := func(n string) bool {
		return slices.ContainsFunc(files, func(f File) bool { return f.Name == n })
	}
	if !taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// arm replaces the pending finalize with a fresh one bound to the current
// submit sequence.
func (a *Aggregator) arm(e *entry) {
	stopTimer(e)
	seq := e.seq
	e.timer = a.sched.AfterFunc(a.idle, func() { a.fire(e, seq) })
}

func stopTimer(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (a *Aggregator) fire(e *entry, seq uint64) {
	e.mu.Lock()
	idleFor := a.clock.Now().Sub(e.last)
	if e.dead || e.seq != seq || e.phase != PhaseIntake || idleFor < a.idle {
		logger.Debug(e.ctx, logger.CompUpload, "upload.timer_stale",
			slog.String("feature", e.key.Feature),
			slog.String("phase", e.phase.String()),
		)
		e.mu.Unlock()
		return
	}
	ctx, rules := e.ctx, e.rules
	b, err := a.finalize(ctx, e)
	e.mu.Unlock()
	if err == nil {
		_ = a.onFinal(ctx, rules, b)
	}
}

// Flush finalizes the batch for key now instead of waiting for the idle
// window.
func (a *Aggregator) Flush(ctx context.Context, key Key) error {
	e := a.lookup(key)
	if e == nil {
		return apperr.StateMismatch(msgNothingPending)
	}
	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return apperr.StateMismatch(msgNothingPending)
	}
	if e.phase == PhaseIntake && len(e.files) == 0 {
		e.mu.Unlock()
		return apperr.Validation("no_files", "❌ Belum ada file yang diupload.")
	}
	rules := e.rules
	b, err := a.finalize(ctx, e)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return a.onFinal(ctx, rules, b)
}

// finalize closes intake exactly once and stores the frozen batch under its
// token. The caller holds e.mu.
func (a *Aggregator) finalize(ctx context.Context, e *entry) (Batch, error) {
	if e.phase != PhaseIntake || len(e.files) == 0 {
		return Batch{}, apperr.ErrRaceNoop
	}
	e.phase = PhaseFinalizing
	stopTimer(e)

	var markup *tele.ReplyMarkup
	if e.rules.Actions != nil {
		markup = e.rules.Actions(e.token)
	}
	if err := a.render(ctx, e, true, markup); err != nil {
		logger.Warn(ctx, logger.CompUpload, "upload.final_preview_failed",
			slog.String("feature", e.key.Feature),
			slog.String("err", err.Error()),
		)
	}

	b := e.snapshot()
	a.mu.Lock()
	a.finals[b.Token] = b
	a.mu.Unlock()
	e.phase = PhaseAwaitingAction

	logger.Info(ctx, logger.CompUpload, "upload.finalized",
		slog.String("feature", e.key.Feature),
		slog.String("token", b.Token),
		slog.Int("files", len(b.Files)),
		slog.Int("items", b.Total()),
	)
	return b, nil
}

// onFinal runs outside the entry lock so the hook may Take or Peek.
func (a *Aggregator) onFinal(ctx context.Context, rules Rules, b Batch) error {
	if rules.OnFinal == nil {
		return nil
	}
	if err := rules.OnFinal(ctx, b); err != nil {
		logger.Warn(ctx, logger.CompUpload, "upload.on_final_failed",
			slog.String("feature", b.Key.Feature),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

func (e *entry) snapshot() Batch {
	return Batch{
		Token:        e.token,
		Key:          e.key,
		Files:        slices.Clone(e.files),
		Preview:      e.preview,
		LastActivity: e.last,
	}
}

// render edits the summary in place, or sends it when there is none yet or
// the edit failed for a reason other than "not modified". A failed fallback
// send is returned as a transport error and the old handle is kept.
func (a *Aggregator) render(ctx context.Context, e *entry, final bool, markup *tele.ReplyMarkup) error {
	if a.msg == nil {
		return nil
	}
	text := renderPreview(e.rules.Title, e.files, e.rules.Unit, a.tail, final)
	if !e.preview.Zero() {
		err := a.msg.Edit(ctx, e.preview, text, markup)
		if err == nil || errors.Is(err, ErrNotModified) {
			return nil
		}
		logger.Debug(ctx, logger.CompUpload, "upload.preview_edit_failed",
			slog.String("feature", e.key.Feature),
			slog.String("err", err.Error()),
		)
	}
	h, err := a.msg.Send(ctx, e.key.ChatID, text, markup)
	if err != nil {
		logger.Error(ctx, logger.CompUpload, "upload.preview_send_failed",
			slog.String("feature", e.key.Feature),
			slog.String("err", err.Error()),
		)
		return apperr.Transport("preview_send", err)
	}
	e.preview = h
	return nil
}

// Peek returns the finalized batch for token without consuming it.
func (a *Aggregator) Peek(token string) (Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.finals[token]
	return b, ok
}

// Take consumes the finalized batch for token. A second Take returns false.
func (a *Aggregator) Take(token string) (Batch, bool) {
	a.mu.Lock()
	b, ok := a.finals[token]
	delete(a.finals, token)
	e := a.entries[b.Key]
	a.mu.Unlock()
	if !ok {
		return Batch{}, false
	}
	if e != nil {
		a.complete(e, token)
	}
	return b, true
}

// complete marks the entry done. Re-entry features keep the entry so the
// next upload opens a new batch.
func (a *Aggregator) complete(e *entry, token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token != token || e.phase != PhaseAwaitingAction {
		return
	}
	e.phase = PhaseCompleted
	if e.rules.Reentry {
		return
	}
	e.dead = true
	a.mu.Lock()
	if a.entries[e.key] == e {
		delete(a.entries, e.key)
	}
	a.mu.Unlock()
}

// Discard drops everything held for key.
func (a *Aggregator) Discard(key Key) {
	a.mu.Lock()
	e := a.entries[key]
	delete(a.entries, key)
	for token, b := range a.finals {
		if b.Key == key {
			delete(a.finals, token)
		}
	}
	a.mu.Unlock()
	if e != nil {
		a.retire(e)
	}
}

// DiscardChat drops every batch of a chat, whatever the feature.
func (a *Aggregator) DiscardChat(chatID int64) int {
	a.mu.Lock()
	var keys []Key
	for k := range a.entries {
		if k.ChatID == chatID {
			keys = append(keys, k)
		}
	}
	for _, b := range a.finals {
		if b.Key.ChatID == chatID && !slices.Contains(keys, b.Key) {
			keys = append(keys, b.Key)
		}
	}
	a.mu.Unlock()
	for _, k := range keys {
		a.Discard(k)
	}
	return len(keys)
}

func errCode(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.ErrCode()
	}
	return "unknown"
}
