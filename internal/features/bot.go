// Package features implements the conversations of the bot: the menus, the
// upload driven conversions, the text wizards, /info and the owner panel.
// Handlers take an Event, so they run the same under telebot and in tests.
package features

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/access"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
)

// Downloader fetches an uploaded document.
type Downloader interface {
	Download(ctx context.Context, fileID string, limit int64) ([]byte, error)
}

// Document is the file attached to a message.
type Document struct {
	FileID string
	Name   string
	Size   int64
}

// Event is one user input reduced to what the features need. Data holds
// the callback payload; MessageID is the message a button sat on.
type Event struct {
	Ctx       context.Context
	UserID    int64
	ChatID    int64
	Username  string
	Text      string
	Data      string
	MessageID int
	Doc       *Document
}

// Options configure a Bot.
type Options struct {
	Messenger  upload.Messenger
	Downloader Downloader
	Aggregator *upload.Aggregator
	// Gate may be nil, which lets everybody in.
	Gate    *access.Gate
	Config  config.BotConfig
	IsOwner func(userID int64) bool
	// Wait pauses between output files; nil sleeps unless ctx is done.
	Wait func(ctx context.Context, d time.Duration) error
}

type callback struct {
	fn    func(Event) error
	gated bool
}

// Bot owns the per-user conversations and routes input to them.
type Bot struct {
	msg      upload.Messenger
	dl       Downloader
	agg      *upload.Aggregator
	gate     *access.Gate
	cfg      config.BotConfig
	loc      *time.Location
	isOwner  func(int64) bool
	wait     func(context.Context, time.Duration) error
	sessions *state.Manager[Event]
	cbs      map[string]callback
}

// New builds a Bot with every feature registered.
func New(opts Options) *Bot {
	if opts.IsOwner == nil {
		opts.IsOwner = func(int64) bool { return false }
	}
	if opts.Wait == nil {
		opts.Wait = sleep
	}
	b := &Bot{
		msg:      opts.Messenger,
		dl:       opts.Downloader,
		agg:      opts.Aggregator,
		gate:     opts.Gate,
		cfg:      opts.Config,
		loc:      opts.Config.Location(),
		isOwner:  opts.IsOwner,
		wait:     opts.Wait,
		sessions: state.NewManager[Event](),
		cbs:      make(map[string]callback),
	}
	b.registerMenu()
	b.registerMerge()
	b.registerCount()
	b.registerSplit()
	b.registerEditName()
	b.registerGetName()
	b.registerVcfTxt()
	b.registerTxtVcf()
	b.registerTextVcf()
	b.registerGroupName()
	b.registerAddCtc()
	b.registerRemoveCtc()
	b.registerToText()
	b.registerInfo()
	b.registerAdmin()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// on registers a callback. Gated callbacks pass the access gate first.
func (b *Bot) on(key string, gated bool, fn func(Event) error) {
	b.cbs[key] = callback{fn: fn, gated: gated}
}

// CallbackKeys lists every callback unique the bot answers.
func (b *Bot) CallbackKeys() []string {
	keys := make([]string, 0, len(b.cbs))
	for k := range b.cbs {
		keys = append(keys, k)
	}
	return keys
}

// Callback runs the handler registered under key.
func (b *Bot) Callback(key string, ev Event) error {
	cb, ok := b.cbs[key]
	if !ok {
		return b.fail(ev, apperr.StateMismatch(msgUnknownAction))
	}
	if cb.gated && !b.allowed(ev) {
		return nil
	}
	return b.fail(ev, cb.fn(ev))
}

// Input routes a text or document to the conversation of the user.
func (b *Bot) Input(ev Event) error {
	if !b.allowed(ev) {
		return nil
	}
	ok, err := b.sessions.Dispatch(ev.Ctx, ev.UserID, ev)
	if !ok {
		return b.fail(ev, apperr.StateMismatch(msgNoSession))
	}
	return b.fail(ev, err)
}

// InProgress implements router.FSM.
func (b *Bot) InProgress(userID int64) bool { return b.sessions.InProgress(userID) }

// ManagerHandler implements router.FSM.
func (b *Bot) ManagerHandler(c tele.Context) error { return b.Input(EventOf(c)) }

// EventOf reads an Event from a telebot update.
func EventOf(c tele.Context) Event {
	id := tghelpers.IdentityOf(c)
	ev := Event{
		Ctx:      tghelpers.BuildContext(c),
		UserID:   id.UserID,
		ChatID:   id.ChatID,
		Username: id.Username,
	}
	if cb := c.Callback(); cb != nil {
		_, ev.Data = callbacks.Parse(cb)
		if cb.Message != nil {
			ev.MessageID = cb.Message.ID
		}
		return ev
	}
	ev.Text = strings.TrimSpace(c.Text())
	if m := c.Message(); m != nil && m.Document != nil {
		ev.Doc = &Document{
			FileID: m.Document.FileID,
			Name:   m.Document.FileName,
			Size:   int64(m.Document.FileSize),
		}
	}
	return ev
}

const (
	msgNoSession     = "❌ Tidak ada proses yang menunggu input. Ketik /start untuk membuka menu."
	msgSessionGone   = "⚠️ Sesi sudah berakhir. Ketik /start untuk mulai lagi."
	msgUnknownAction = "⚠️ Aksi tidak dikenal. Ketik /start untuk membuka menu."
	msgUnknownText   = "❓ Perintah tidak dikenal. Ketik /start untuk membuka menu."
	msgUnknownDoc    = "📎 Pilih fitur dari menu /start dulu sebelum mengirim file."
	msgCancelled     = "❌ Proses dibatalkan."
	hr               = "━━━━━━━━━━━━━━━━━━━━━━━"
	footerStart      = "Gunakan /start untuk memulai baru."
)

// fail translates a domain error into what the user sees. Validation and
// capacity keep the conversation; a state mismatch resets it; transport
// failures are only logged. The error is returned so the router records
// its code.
func (b *Bot) fail(ev Event, err error) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindRaceNoop:
		return nil
	case apperr.KindValidation, apperr.KindCapacity:
		if apperr.UserVisible(err) {
			_ = b.say(ev, apperr.Message(err), nil)
		}
	case apperr.KindStateMismatch:
		b.reset(ev)
		if apperr.UserVisible(err) {
			_ = b.say(ev, apperr.Message(err), nil)
		}
	default:
		logger.Error(ev.Ctx, logger.CompConvert, "feature.failed",
			slog.String("status", "FAIL"),
			slog.String("kind", apperr.KindOf(err).String()),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// reset drops the conversation and every batch of the chat.
func (b *Bot) reset(ev Event) {
	b.sessions.Clear(ev.UserID)
	if b.agg != nil {
		b.agg.DiscardChat(ev.ChatID)
	}
}

// allowed runs the access gate and shows the join or paywall message when
// the user may not continue.
func (b *Bot) allowed(ev Event) bool {
	if b.gate == nil || b.isOwner(ev.UserID) {
		return true
	}
	v, err := b.gate.Check(ev.Ctx, ev.UserID, ev.Username)
	if err != nil {
		return true
	}
	switch v.Decision {
	case access.NeedJoin:
		text, kb := b.gate.JoinText(v)
		_ = b.show(ev, text, kb)
		return false
	case access.Paywall:
		text, kb := b.gate.PaywallText()
		_ = b.show(ev, text, kb)
		return false
	}
	return true
}

// say sends a new message to the chat of ev.
func (b *Bot) say(ev Event, text string, markup *tele.ReplyMarkup) error {
	if _, err := b.msg.Send(ev.Ctx, ev.ChatID, text, markup); err != nil {
		return apperr.Transport("send", err)
	}
	return nil
}

// show replaces the message a button sat on, or sends a new one.
func (b *Bot) show(ev Event, text string, markup *tele.ReplyMarkup) error {
	if ev.MessageID != 0 {
		err := b.msg.Edit(ev.Ctx, upload.Handle{ChatID: ev.ChatID, MessageID: ev.MessageID}, text, markup)
		if err == nil || errors.Is(err, upload.ErrNotModified) {
			return nil
		}
	}
	return b.say(ev, text, markup)
}

// UnknownText answers text no conversation is waiting for.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.say(EventOf(c), msgUnknownText, nil)
	}
}

// UnknownDocument answers a file sent outside an upload.
func (b *Bot) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.say(EventOf(c), msgUnknownDoc, nil)
	}
}

// UnknownCallback answers a button the bot does not know.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.Callback("", EventOf(c))
	}
}
