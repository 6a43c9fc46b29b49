package features

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	tg "github.com/m3rciful/vcfbot/core/telegram"
	"github.com/m3rciful/vcfbot/core/telegram/format"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/access"
	"github.com/m3rciful/vcfbot/internal/apperr"
)

const (
	cbAdminMenu   = "admin_menu"
	cbAdminAdd    = "admin_add"
	cbAdminPlan   = "admin_plan"
	cbAdminList   = "admin_list"
	cbAdminDelete = "admin_delete"
	featAdmin     = "admin"

	msgDenied = "❌ Akses ditolak."
)

type (
	// adminAwaitID waits for the Telegram ID of the user to grant.
	adminAwaitID struct{}
	// adminAwaitPlan waits for the plan button of target.
	adminAwaitPlan struct{ target int64 }
	// adminAwaitIndex waits for the list number of the user to delete.
	adminAwaitIndex struct{ rows []access.Subscription }
)

func (adminAwaitID) StepName() string    { return "await_user_id" }
func (adminAwaitPlan) StepName() string  { return "await_plan" }
func (adminAwaitIndex) StepName() string { return "await_index" }

func (b *Bot) registerAdmin() {
	b.on(cbAdminMenu, false, b.owner(func(ev Event) error {
		b.sessions.ClearIf(ev.UserID, featAdmin)
		return b.show(ev, "🛠️ *Panel Admin*\nPilih menu:", adminMenu())
	}))
	b.on(cbAdminAdd, false, b.owner(func(ev Event) error {
		b.sessions.Set(ev.UserID, featAdmin, adminAwaitID{})
		return b.show(ev, "➕ *Tambah user*\n\nKirim *ID Telegram* user (angka).", cancelAdmin())
	}))
	b.on(cbAdminPlan, false, b.owner(b.adminPlan))
	b.on(cbAdminList, false, b.owner(func(ev Event) error {
		b.sessions.ClearIf(ev.UserID, featAdmin)
		rows, err := b.gate.Store().ListSubscriptions(ev.Ctx)
		if err != nil {
			return apperr.Transport("list_subscriptions", err)
		}
		if len(rows) == 0 {
			return b.show(ev, "📋 *List user kosong.*", adminMenu())
		}
		return b.show(ev, b.listText(rows), adminMenu())
	}))
	b.on(cbAdminDelete, false, b.owner(func(ev Event) error {
		rows, err := b.gate.Store().ListSubscriptions(ev.Ctx)
		if err != nil {
			return apperr.Transport("list_subscriptions", err)
		}
		if len(rows) == 0 {
			b.sessions.ClearIf(ev.UserID, featAdmin)
			return b.show(ev, "Tidak ada user untuk dihapus.", adminMenu())
		}
		b.sessions.Set(ev.UserID, featAdmin, adminAwaitIndex{rows: rows})
		return b.show(ev, b.listText(rows)+"\n\n🗑️ *Ketik nomor urut* user yang ingin dihapus.", cancelAdmin())
	}))
	b.sessions.Handle(featAdmin, b.onAdmin)
}

// owner wraps fn so only the bot owner reaches it and only when the
// subscription store is wired.
func (b *Bot) owner(fn func(Event) error) func(Event) error {
	return func(ev Event) error {
		if !b.isOwner(ev.UserID) {
			return b.say(ev, msgDenied, nil)
		}
		if b.gate == nil {
			return apperr.Validation("store_disabled", "⚠️ Penyimpanan langganan tidak aktif.")
		}
		return fn(ev)
	}
}

// Admin opens the owner panel.
func (b *Bot) Admin(ev Event) error {
	return b.fail(ev, b.owner(func(ev Event) error {
		b.sessions.ClearIf(ev.UserID, featAdmin)
		return b.say(ev, "🛠️ *Panel Admin*\nPilih menu di bawah:", adminMenu())
	})(ev))
}

func adminMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Data("➕ Tambah user", cbAdminAdd)},
		[]keyboard.InlineBtn{keyboard.Data("📋 List user", cbAdminList)},
		[]keyboard.InlineBtn{keyboard.Data("🗑️ Hapus user", cbAdminDelete)},
		[]keyboard.InlineBtn{keyboard.Data("🏠 Kembali", access.CallbackHome)},
	)
}

func cancelAdmin() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{keyboard.Data("⬅️ Batal", cbAdminMenu)})
}

func planKeyboard() *tele.ReplyMarkup {
	var rows [][]keyboard.InlineBtn
	for i, p := range access.Plans {
		if i%2 == 0 {
			rows = append(rows, nil)
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], keyboard.Data(p.Label(), cbAdminPlan, string(p)))
	}
	rows = append(rows, []keyboard.InlineBtn{keyboard.Data("⬅️ Batal", cbAdminMenu)})
	return keyboard.InlineButtonsRows(rows...)
}

func (b *Bot) adminPlan(ev Event) error {
	s, ok := b.sessions.Get(ev.UserID)
	step, waiting := s.Step.(adminAwaitPlan)
	if !ok || s.Feature != featAdmin || !waiting {
		return apperr.Validation("no_target", "Belum ada ID user. Kirim ID dulu.")
	}
	plan, ok := access.ParsePlan(ev.Data)
	if !ok {
		return apperr.Validation("bad_plan", "❌ Paket tidak dikenal.")
	}
	store := b.gate.Store()
	username := ""
	if cur, found, err := store.GetSubscription(ev.Ctx, step.target); err == nil && found {
		username = cur.Username
	}
	sub, err := store.UpsertSubscription(ev.Ctx, step.target, username, plan)
	if err != nil {
		return apperr.Transport("upsert_subscription", err)
	}
	b.sessions.ClearIf(ev.UserID, featAdmin)
	text := fmt.Sprintf("✅ User *%d* diaktifkan *%s*.", sub.UserID, strings.ToUpper(plan.Label()))
	if sub.ExpiresAt > 0 {
		text += "\nBerakhir: " + tghelpers.FormatUnix(sub.ExpiresAt, b.loc)
	}
	return b.show(ev, text, adminMenu())
}

func (b *Bot) onAdmin(in Event, s state.Session) error {
	if !b.isOwner(in.UserID) || b.gate == nil {
		b.sessions.ClearIf(in.UserID, featAdmin)
		return b.say(in, msgDenied, nil)
	}
	txt := strings.TrimSpace(in.Text)
	switch step := s.Step.(type) {
	case adminAwaitID:
		id, err := strconv.ParseInt(txt, 10, 64)
		if err != nil || id <= 0 {
			return apperr.Validation("bad_user_id", "❗ ID harus angka. Coba kirim lagi.")
		}
		b.sessions.Set(in.UserID, featAdmin, adminAwaitPlan{target: id})
		return b.say(in, fmt.Sprintf("ID diterima: *%d*\nPilih paket langganan:", id), planKeyboard())
	case adminAwaitPlan:
		return apperr.Validation("use_buttons", "👆 Pilih paket pada tombol di atas.")
	case adminAwaitIndex:
		idx, err := strconv.Atoi(txt)
		if err != nil {
			return apperr.Validation("bad_index", "❗ Nomor urut harus angka. Kirim lagi.")
		}
		if idx < 1 || idx > len(step.rows) {
			return apperr.Validation("bad_index", "❗ Nomor urut tidak valid.")
		}
		target := step.rows[idx-1].UserID
		if _, err := b.gate.Store().DeleteSubscription(in.Ctx, target); err != nil {
			return apperr.Transport("delete_subscription", err)
		}
		b.sessions.ClearIf(in.UserID, featAdmin)
		return b.say(in, fmt.Sprintf("✅ User %d dihapus.", target), adminMenu())
	}
	return apperrSessionGone()
}

func (b *Bot) listText(rows []access.Subscription) string {
	lines := []string{"📋 *List User*", "Format: No. — ID — Username — Paket — Expired"}
	for i, r := range rows {
		name := "-"
		if r.Username != "" {
			name = format.MD(r.Username)
		}
		lines = append(lines, fmt.Sprintf("%d. %d — %s — %s — %s",
			i+1, r.UserID, name, r.Plan.Label(), tghelpers.FormatUnix(r.ExpiresAt, b.loc)))
	}
	return strings.Join(lines, "\n")
}

// Register binds the bot's commands, callbacks and fallbacks to reg.
func (b *Bot) Register(reg *tg.Registry) {
	adapt := func(fn func(Event) error) tele.HandlerFunc {
		return func(c tele.Context) error { return fn(EventOf(c)) }
	}
	warn := func(err error) {
		logger.Warn(context.Background(), logger.CompWire, "register.failed",
			slog.String("err", err.Error()),
		)
	}
	for _, key := range b.CallbackKeys() {
		if err := reg.RegisterCallback(key, adapt(func(ev Event) error { return b.Callback(key, ev) })); err != nil {
			warn(err)
		}
	}
	info := func(ev Event) error { return b.fail(ev, b.Info(ev)) }
	for _, c := range []struct {
		name string
		cmd  tg.Command
	}{
		{"/start", tg.Command{Handler: adapt(b.Start), Description: "Buka menu utama"}},
		{"/info", tg.Command{Handler: adapt(info), Description: "Status akses & aturan bot"}},
		{"/done", tg.Command{Handler: adapt(b.Done), Description: "Selesaikan upload sekarang"}},
		{"/cancel", tg.Command{Handler: adapt(b.Cancel), Description: "Batalkan proses berjalan"}},
		{"/admin", tg.Command{Handler: adapt(b.Admin), Description: "Panel admin", OwnerOnly: true}},
	} {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			warn(err)
		}
	}
	reg.SetTextFallback(b.UnknownText())
	reg.SetCallbackNotFound(b.UnknownCallback())
}
