package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
)

// Callback uniques of the gate buttons.
const (
	CallbackCheck = "ac_check"
	CallbackHome  = "nav_home"
)

// MemberChecker tells whether a user has joined a public chat.
type MemberChecker interface {
	IsMember(ctx context.Context, chat string, userID int64) (bool, error)
}

// TelegramMembers asks the Bot API for chat membership.
type TelegramMembers struct {
	API tele.API
}

// IsMember resolves chat by @username and checks the member role.
func (t TelegramMembers) IsMember(_ context.Context, chat string, userID int64) (bool, error) {
	c, err := t.API.ChatByUsername(chat)
	if err != nil {
		return false, err
	}
	m, err := t.API.ChatMemberOf(c, &tele.User{ID: userID})
	if err != nil {
		return false, err
	}
	return m.Role != tele.Left && m.Role != tele.Kicked, nil
}

// Decision is the outcome of a gate check.
type Decision int

const (
	Allow Decision = iota
	NeedJoin
	Paywall
)

// Verdict carries the decision plus what the gate saw.
type Verdict struct {
	Decision      Decision
	JoinedChannel bool
	JoinedGroup   bool
	Status        Status
}

// Gate combines the owner bypass, the community join check and the
// unified status.
type Gate struct {
	store   *Store
	members MemberChecker
	channel string
	group   string
	owner   string
}

// GateOptions configure a Gate. Empty chat names skip that join check.
type GateOptions struct {
	Members         MemberChecker
	RequiredChannel string
	RequiredGroup   string
	OwnerContact    string
}

// NewGate builds a Gate over store.
func NewGate(store *Store, opts GateOptions) *Gate {
	return &Gate{
		store:   store,
		members: opts.Members,
		channel: opts.RequiredChannel,
		group:   opts.RequiredGroup,
		owner:   opts.OwnerContact,
	}
}

// Store returns the underlying access store.
func (g *Gate) Store() *Store { return g.store }

// CheckJoin verifies membership only; /start uses it before the menu.
func (g *Gate) CheckJoin(ctx context.Context, userID int64) Verdict {
	if g.store.IsOwner(userID) {
		return Verdict{Decision: Allow, JoinedChannel: true, JoinedGroup: true, Status: Status{Kind: StatusOwner}}
	}
	ch, gr := g.joined(ctx, userID)
	v := Verdict{JoinedChannel: ch, JoinedGroup: gr}
	if !ch || !gr {
		v.Decision = NeedJoin
		logger.Info(ctx, logger.CompAccess, "access.join_required",
			slog.Bool("channel", ch),
			slog.Bool("group", gr),
		)
	}
	return v
}

// Check runs the full gate for a feature. Lookup failures are returned with
// an Allow verdict so a broken store never locks users out.
func (g *Gate) Check(ctx context.Context, userID int64, username string) (Verdict, error) {
	v := g.CheckJoin(ctx, userID)
	if v.Decision != Allow || v.Status.Kind == StatusOwner {
		return v, nil
	}
	st, err := g.store.GetUnifiedStatus(ctx, userID, username)
	if err != nil {
		logger.Error(ctx, logger.CompAccess, "access.lookup_failed",
			slog.String("status", "FAIL"),
			slog.String("err", err.Error()),
		)
		return v, err
	}
	v.Status = st
	if !st.Allowed() {
		v.Decision = Paywall
		logger.Info(ctx, logger.CompAccess, "access.denied", slog.String("reason", string(st.Kind)))
	}
	return v, nil
}

// joined checks channel and group in parallel. Errors count as not joined.
func (g *Gate) joined(ctx context.Context, userID int64) (channel, group bool) {
	channel, group = g.channel == "", g.group == ""
	if g.members == nil {
		return true, true
	}
	eg, ectx := errgroup.WithContext(ctx)
	check := func(chat string, out *bool) {
		if chat == "" {
			return
		}
		eg.Go(func() error {
			ok, err := g.members.IsMember(ectx, chat, userID)
			if err != nil {
				logger.Debug(ectx, logger.CompAccess, "access.member_check_failed",
					slog.String("chat", chat),
					slog.String("err", err.Error()),
				)
				return nil
			}
			*out = ok
			return nil
		})
	}
	check(g.channel, &channel)
	check(g.group, &group)
	_ = eg.Wait()
	return channel, group
}

// JoinText renders the join gate message.
func (g *Gate) JoinText(v Verdict) (string, *tele.ReplyMarkup) {
	var status string
	switch {
	case v.JoinedChannel && !v.JoinedGroup:
		status = "✅ Sudah join channel\n❌ Belum join group"
	case v.JoinedGroup && !v.JoinedChannel:
		status = "✅ Sudah join group\n❌ Belum join channel"
	default:
		status = "❌ Belum join channel & group"
	}
	text := "⚠️ Untuk menggunakan bot ini kamu harus join komunitas:\n\n" +
		status + "\n\n" +
		fmt.Sprintf("📢 Channel: %s\n💬 Group: %s\n\n", orDash(g.channel), orDash(g.group)) +
		"Setelah join, klik tombol 🔁 *Cek Lagi*."

	var links []keyboard.InlineBtn
	if g.channel != "" {
		links = append(links, keyboard.Link("📢 Join Channel", tmeLink(g.channel)))
	}
	if g.group != "" {
		links = append(links, keyboard.Link("💬 Join Group", tmeLink(g.group)))
	}
	return text, keyboard.InlineButtonsRows(links, []keyboard.InlineBtn{keyboard.Data("🔁 Cek Lagi", CallbackCheck)})
}

// PaywallText renders the expired-access message.
func (g *Gate) PaywallText() (string, *tele.ReplyMarkup) {
	const hr = "━━━━━━━━━━━━━━━━━━━━━━━"
	var sb strings.Builder
	sb.WriteString("🔒 *Akses diperlukan*\n" + hr + "\n")
	sb.WriteString("⏳ *Trial/Akses kamu sudah habis.*\n")
	fmt.Fprintf(&sb, "👤 *Hubungi owner:* %s\n%s\n", orDash(g.owner), hr)
	fmt.Fprintf(&sb, "🛡️ Wajib join Channel: %s\n", orDash(g.channel))
	fmt.Fprintf(&sb, "🛡️ Wajib join Group: %s\n", orDash(g.group))

	var owner []keyboard.InlineBtn
	if g.owner != "" {
		owner = append(owner, keyboard.Link("👤 Owner", tmeLink(g.owner)))
	}
	return sb.String(), keyboard.InlineButtonsRows(owner, []keyboard.InlineBtn{keyboard.Data("🏠 Home", CallbackHome)})
}

// Channel and Group expose the configured community handles.
func (g *Gate) Channel() string { return g.channel }
func (g *Gate) Group() string   { return g.group }

// OwnerContact is the @handle users are told to contact.
func (g *Gate) OwnerContact() string { return g.owner }

func tmeLink(handle string) string {
	return "https://t.me/" + strings.TrimPrefix(handle, "@")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
