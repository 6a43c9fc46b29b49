package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbEditName   = "edit_ctc_name"
	featEditName = "edit_name"
)

// editBase waits for the new base contact name.
type editBase struct{ token string }

func (editBase) StepName() string { return "await_base" }

func (b *Bot) registerEditName() {
	b.on(cbEditName, true, b.startEditName)
	b.sessions.Handle(featEditName, b.onEditName)
}

func (b *Bot) startEditName(ev Event) error {
	user := ev.UserID
	rules := upload.Rules{
		Feature: featEditName,
		Accept:  []string{".vcf"},
		Unit:    "kontak",
		Measure: countVcf,
		OnFinal: func(ctx context.Context, bt upload.Batch) error {
			if !b.advance(user, featEditName, editBase{token: bt.Token}) {
				return nil
			}
			_, err := b.msg.Send(ctx, bt.Key.ChatID,
				"📝 *Ketik nama dasar kontak*.\n_Contoh: Admin, HHD, Kontak Baru_", nil)
			return err
		},
	}
	return b.startUpload(ev, rules, "✏️ *EDIT CTC NAME*\n"+hr+"\n"+
		"📤 Upload satu atau beberapa file *.vcf*.\nSemua kontak diberi nama baru berurutan per file.")
}

func (b *Bot) onEditName(in Event, s state.Session) error {
	step, ok := s.Step.(editBase)
	if in.Doc != nil || !ok {
		return b.submit(in, featEditName)
	}
	name, err := contactName(in.Text)
	if err != nil {
		return err
	}
	bt, err := b.batch(step.token)
	if err != nil {
		return err
	}

	files := convertAll(in.Ctx, bt.Files, func(f upload.File) outFile {
		return outFile{Name: f.Name, Data: vcf.Dump(vcf.RenameBlocks(vcf.ParseBlocks(f.Content), name))}
	})
	sent, err := b.deliver(in, files)
	if err != nil {
		return err
	}
	b.complete(in, featEditName, step.token)
	return b.say(in, strings.Join([]string{
		"✅ *EDIT CTC NAME selesai!*",
		hr,
		fmt.Sprintf("📁 *File diproses:* %d", sent),
		fmt.Sprintf("👤 *Total kontak:* %d", bt.Total()),
		hr,
		"Ketik */start* untuk kembali ke menu utama.",
	}, "\n"), nil)
}
