package features

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbVcfTxt      = "cv_vcf_to_txt"
	cbVcfSeparate = "vcf_separate"
	cbVcfMerge    = "vcf_merge"
	featVcfTxt    = "vcf_txt"
)

type (
	// vcfChoice waits for the separate or merge button.
	vcfChoice struct{ token string }
	// vcfMergeName waits for the name of the merged TXT.
	vcfMergeName struct{ token string }
)

func (vcfChoice) StepName() string    { return "await_choice" }
func (vcfMergeName) StepName() string { return "await_filename" }

func (b *Bot) registerVcfTxt() {
	b.on(cbVcfTxt, true, b.startVcfTxt)
	b.on(cbVcfSeparate, true, b.vcfSeparate)
	b.on(cbVcfMerge, true, func(ev Event) error {
		if _, err := b.batch(ev.Data); err != nil {
			return err
		}
		if !b.advance(ev.UserID, featVcfTxt, vcfMergeName{token: ev.Data}) {
			return apperrSessionGone()
		}
		return b.say(ev, "📝 Ketik nama file TXT gabungan:", nil)
	})
	b.sessions.Handle(featVcfTxt, b.onVcfTxt)
}

func vcfTxtActions(token string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		keyboard.Data("📄 Selesai", cbVcfSeparate, token),
		keyboard.Data("🔗 Gabung", cbVcfMerge, token),
	})
}

func (b *Bot) startVcfTxt(ev Event) error {
	user := ev.UserID
	rules := upload.Rules{
		Feature: featVcfTxt,
		Accept:  []string{".vcf"},
		Unit:    "kontak",
		Measure: countVcf,
		Actions: vcfTxtActions,
		OnFinal: func(_ context.Context, bt upload.Batch) error {
			b.advance(user, featVcfTxt, vcfChoice{token: bt.Token})
			return nil
		},
	}
	return b.startUpload(ev, rules, "🔄 *CV VCF TO TXT*\n"+hr+"\n"+
		"📤 Upload satu atau beberapa file *.vcf*.\n"+
		"Setelah upload selesai pilih *Selesai* (per file) atau *Gabung* (satu file).")
}

func (b *Bot) vcfSeparate(ev Event) error {
	bt, err := b.batch(ev.Data)
	if err != nil {
		return err
	}
	files := convertAll(ev.Ctx, bt.Files, func(f upload.File) outFile {
		return outFile{Name: stem(f.Name) + ".txt", Data: vcf.Text(phonesOf(f))}
	})
	sent, err := b.deliver(ev, files)
	if err != nil {
		return err
	}
	b.complete(ev, featVcfTxt, ev.Data)
	return b.say(ev, vcfTxtSummary(sent, countAll(files), ""), nil)
}

func (b *Bot) onVcfTxt(in Event, s state.Session) error {
	if in.Doc != nil {
		return b.submit(in, featVcfTxt)
	}
	switch step := s.Step.(type) {
	case vcfChoice:
		return apperr.Validation("use_buttons", "👆 Pilih *Selesai* atau *Gabung* pada ringkasan upload.")
	case vcfMergeName:
		name, err := fileName(in.Text, ".txt")
		if err != nil {
			return err
		}
		bt, err := b.batch(step.token)
		if err != nil {
			return err
		}
		var phones []string
		for _, f := range bt.Files {
			phones = append(phones, phonesOf(f)...)
		}
		phones = uniq(phones)
		if _, err := b.deliver(in, []outFile{{Name: name, Data: vcf.Text(phones)}}); err != nil {
			return err
		}
		b.complete(in, featVcfTxt, step.token)
		return b.say(in, vcfTxtSummary(1, len(phones), name), nil)
	}
	return b.submit(in, featVcfTxt)
}

func countAll(files []outFile) int {
	n := 0
	for _, f := range files {
		n += vcf.CountNonEmptyLines(f.Data)
	}
	return n
}

func vcfTxtSummary(files, numbers int, name string) string {
	lines := []string{
		"✅ *VCF TO TXT selesai!*",
		hr,
		fmt.Sprintf("📁 *File dikirim:* %d", files),
		fmt.Sprintf("📞 *Total nomor:* %d", numbers),
	}
	if name != "" {
		lines = append(lines, fmt.Sprintf("📝 *Nama file:* `%s`", format.Code(name)))
	}
	return strings.Join(append(lines, hr, footerStart), "\n")
}
