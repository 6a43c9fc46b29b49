package features

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/internal/access"
	"github.com/m3rciful/vcfbot/internal/apperr"
)

const (
	cbNavPage    = "nav_page"
	cbBackToMain = "back_to_main"

	cbTextMenu  = "text_to_vcf"
	cbCvMenu    = "cv_txt_to_vcf"
	cbMergeMenu = "merge_files"
)

const menuTitle = "🤖 *WELCOME TO VCF CONVERTER BOT*\n" + hr + "\nPilih menu di bawah ini:"

func mainMenu(page int) (string, *tele.ReplyMarkup) {
	btn := keyboard.Data
	if page == 2 {
		return menuTitle, keyboard.InlineButtonsRows(
			[]keyboard.InlineBtn{btn("➕ ADD CTC VCF", cbAddCtc), btn("🗑️ REMOVE CTC VCF", cbRemoveCtc)},
			[]keyboard.InlineBtn{btn("✏️ EDIT CTC NAME", cbEditName), btn("📄 GET NAME FILE", cbGetName)},
			[]keyboard.InlineBtn{btn("✂️ SPLIT TXT/VCF", cbSplit), btn("📜 TXT/VCF TO TEXT", cbToText)},
			navRow(1),
		)
	}
	return menuTitle, keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{btn("📝 CV ADMIN/NAVY", cbTextMenu), btn("📁 CV TXT TO VCF", cbCvMenu)},
		[]keyboard.InlineBtn{btn("🔄 CV VCF TO TXT", cbVcfTxt), btn("🔗 MERGE TXT/VCF", cbMergeMenu)},
		[]keyboard.InlineBtn{btn("🔢 COUNT VCF/TXT", cbCount), btn("👥 GROUP NAME", cbGroupName)},
		navRow(2),
	)
}

// navRow flips between the two menu pages; both arrows lead to other.
func navRow(other int) []keyboard.InlineBtn {
	page := "1"
	if other == 2 {
		page = "2"
	}
	return []keyboard.InlineBtn{
		keyboard.Data("⬅️", cbNavPage, page),
		keyboard.Data("🏠", access.CallbackHome),
		keyboard.Data("➡️", cbNavPage, page),
	}
}

func backRow() []keyboard.InlineBtn {
	return []keyboard.InlineBtn{keyboard.Data("⬅️ Back", cbBackToMain)}
}

func (b *Bot) registerMenu() {
	b.on(cbNavPage, false, func(ev Event) error {
		page := 1
		if ev.Data == "2" {
			page = 2
		}
		text, kb := mainMenu(page)
		return b.show(ev, text, kb)
	})
	home := func(ev Event) error {
		b.reset(ev)
		text, kb := mainMenu(1)
		return b.show(ev, text, kb)
	}
	b.on(access.CallbackHome, false, home)
	b.on(cbBackToMain, false, home)
	b.on(access.CallbackCheck, false, b.Start)

	b.on(cbTextMenu, true, func(ev Event) error {
		return b.show(ev, "📝 *CV ADMIN/NAVY — Pilih Sub Fitur*\n\n"+
			"• *FORMAT* → sekali kirim teks langsung jadi\n"+
			"• *INPUT* → input satu per satu.",
			keyboard.InlineButtonsRows(
				[]keyboard.InlineBtn{keyboard.Data("📄 FORMAT", cbTextFormat), keyboard.Data("⌨️ INPUT", cbTextInput)},
				backRow(),
			))
	})
	b.on(cbCvMenu, true, func(ev Event) error {
		return b.show(ev, "📁 *CV TXT TO VCF — Pilih Mode:*\n\n"+
			"🔧 *DIRECT* → per file langsung jadi VCF\n"+
			"🚀 *BATCH* → pecah menjadi beberapa VCF",
			keyboard.InlineButtonsRows(
				[]keyboard.InlineBtn{keyboard.Data("🔧 DIRECT", cbTxtVcfV1), keyboard.Data("🚀 BATCH", cbTxtVcfV2)},
				backRow(),
			))
	})
	b.on(cbMergeMenu, true, func(ev Event) error {
		return b.show(ev, "🔗 *MERGE TXT/VCF — Pilih Jenis File:*\n\n"+
			"📄 *TXT* — gabung beberapa file TXT menjadi satu\n"+
			"📋 *VCF* — gabung beberapa file VCF menjadi satu",
			keyboard.InlineButtonsRows(
				[]keyboard.InlineBtn{keyboard.Data("📄 TXT", cbMergeTxt), keyboard.Data("📋 VCF", cbMergeVcf)},
				backRow(),
			))
	})
}

// Start clears the conversation, checks the community join and shows the
// main menu. /start and the "check again" button both land here.
func (b *Bot) Start(ev Event) error {
	b.reset(ev)
	if b.gate != nil && !b.isOwner(ev.UserID) {
		if _, err := b.gate.Store().GetOrCreateUser(ev.Ctx, ev.UserID, ev.Username); err != nil {
			logger.Warn(ev.Ctx, logger.CompAccess, "access.register_failed",
				slog.String("err", err.Error()),
			)
		}
		if v := b.gate.CheckJoin(ev.Ctx, ev.UserID); v.Decision == access.NeedJoin {
			text, kb := b.gate.JoinText(v)
			return b.show(ev, text, kb)
		}
	}
	text, kb := mainMenu(1)
	return b.show(ev, text, kb)
}

// Cancel drops the conversation and any batch of the chat.
func (b *Bot) Cancel(ev Event) error {
	_, had := b.sessions.Get(ev.UserID)
	b.reset(ev)
	if !had {
		return b.say(ev, "ℹ️ Tidak ada proses yang berjalan.", nil)
	}
	return b.say(ev, msgCancelled, keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Data("🏠 Menu", access.CallbackHome)},
	))
}

// Done finalizes the running upload batch without waiting for the idle
// window.
func (b *Bot) Done(ev Event) error {
	s, ok := b.sessions.Get(ev.UserID)
	if !ok {
		return b.fail(ev, apperr.StateMismatch(msgNoSession))
	}
	if _, collecting := s.Step.(awaitFiles); !collecting {
		return b.fail(ev, apperr.Validation("not_collecting", "ℹ️ Tidak ada upload yang sedang berjalan."))
	}
	return b.fail(ev, b.agg.Flush(ev.Ctx, b.key(ev, s.Feature)))
}
