package features

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/internal/access"
	"github.com/m3rciful/vcfbot/internal/apperr"
)

const (
	cbInfo        = "info"
	cbInfoRefresh = "info_refresh"
)

func (b *Bot) registerInfo() {
	b.on(cbInfo, false, b.Info)
	b.on(cbInfoRefresh, false, b.Info)
}

// Info shows the access status of the user and the bot's access rules.
func (b *Bot) Info(ev Event) error {
	status := access.Status{Kind: access.StatusPermanent}
	if b.isOwner(ev.UserID) {
		status = access.Status{Kind: access.StatusOwner}
	} else if b.gate != nil {
		st, err := b.gate.Store().GetUnifiedStatus(ev.Ctx, ev.UserID, ev.Username)
		if err != nil {
			_ = b.say(ev, "❌ Gagal membuka INFO.", nil)
			return apperr.Transport("status", err)
		}
		status = st
	}
	return b.show(ev, b.infoText(ev, status), b.infoKeyboard())
}

func statusLabel(k access.StatusKind) string {
	switch k {
	case access.StatusOwner:
		return "👑 Owner"
	case access.StatusPermanent:
		return "♾️ Permanent"
	case access.StatusTrial:
		return "⏳ Trial"
	case access.StatusExpired:
		return "🔒 Habis"
	}
	if p, ok := access.ParsePlan(string(k)); ok {
		return "💳 Langganan " + p.Label()
	}
	return string(k)
}

func (b *Bot) infoText(ev Event, st access.Status) string {
	username := "-"
	if ev.Username != "" {
		username = "@" + format.MD(ev.Username)
	}
	lines := []string{
		"ℹ️ *INFO*",
		hr,
		fmt.Sprintf("🆔 *ID:* `%d`", ev.UserID),
		fmt.Sprintf("👤 *Username:* %s", username),
		fmt.Sprintf("📌 *Status:* %s", statusLabel(st.Kind)),
	}
	if !st.ExpiresAt.IsZero() && st.Allowed() {
		lines = append(lines,
			fmt.Sprintf("⏳ *Sisa:* %s", access.HumanLeft(st.SecondsLeft)),
			fmt.Sprintf("📅 *Berakhir:* %s", tghelpers.FormatTime(st.ExpiresAt, b.loc)),
		)
	}
	lines = append(lines, hr, "🛡️ *Akses Bot*")
	if b.gate == nil {
		return strings.Join(append(lines, "• Bot terbuka untuk semua pengguna."), "\n")
	}
	if ch := b.gate.Channel(); ch != "" {
		lines = append(lines, "• Wajib join Channel "+format.MD(ch))
	}
	if gr := b.gate.Group(); gr != "" {
		lines = append(lines, "• Wajib join Group "+format.MD(gr))
	}
	trial := time.Duration(b.cfg.TrialMinutes) * time.Minute
	lines = append(lines, fmt.Sprintf("• Trial gratis sekali (%s). Setelah habis, minta aktivasi ke owner.",
		access.HumanLeft(int64(trial.Seconds()))))
	if owner := b.gate.OwnerContact(); owner != "" && st.Kind == access.StatusExpired {
		lines = append(lines, "• Hubungi owner "+format.MD(owner)+" untuk melanjutkan.")
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) infoKeyboard() *tele.ReplyMarkup {
	var rows [][]keyboard.InlineBtn
	if b.gate != nil && b.gate.OwnerContact() != "" {
		owner := strings.TrimPrefix(b.gate.OwnerContact(), "@")
		rows = append(rows, []keyboard.InlineBtn{keyboard.Link("👤 Owner", "https://t.me/"+owner)})
	}
	rows = append(rows,
		[]keyboard.InlineBtn{keyboard.Data("🔄 Refresh", cbInfoRefresh)},
		[]keyboard.InlineBtn{keyboard.Data("🏠 Home", cbBackToMain)},
	)
	return keyboard.InlineButtonsRows(rows...)
}
