package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbRemoveCtc   = "remove_ctc_vcf"
	featRemoveCtc = "remove_ctc"
)

// removeTargets waits for the numbers to drop.
type removeTargets struct{ token string }

func (removeTargets) StepName() string { return "await_phones" }

func (b *Bot) registerRemoveCtc() {
	b.on(cbRemoveCtc, true, b.startRemoveCtc)
	b.sessions.Handle(featRemoveCtc, b.onRemoveCtc)
}

func (b *Bot) startRemoveCtc(ev Event) error {
	user := ev.UserID
	rules := upload.Rules{
		Feature:  featRemoveCtc,
		Accept:   []string{".vcf"},
		Unit:     "kontak",
		Measure:  countVcf,
		MaxFiles: 1,
		Replace:  true,
		OnFinal: func(ctx context.Context, bt upload.Batch) error {
			if !b.advance(user, featRemoveCtc, removeTargets{token: bt.Token}) {
				return nil
			}
			_, err := b.msg.Send(ctx, bt.Key.ChatID,
				"✍️ Kirim *nomor telepon* yang ingin dihapus (multi-baris).\n"+
					"Perbandingan memakai *angka saja* (spasi/simbol diabaikan).", nil)
			return err
		},
	}
	return b.startUpload(ev, rules, "🗑️ *REMOVE CTC VCF*\n"+hr+"\n"+
		"📎 Upload *1 file VCF* untuk dihapus kontaknya.\n"+
		"Lalu kirim *daftar nomor* (1 baris = 1 nomor).")
}

func (b *Bot) onRemoveCtc(in Event, s state.Session) error {
	step, ok := s.Step.(removeTargets)
	if in.Doc != nil || !ok {
		return b.submit(in, featRemoveCtc)
	}
	targets := vcf.ExtractPhones(in.Text)
	var valid []string
	for _, t := range targets {
		if vcf.Digits(t) != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return apperr.Validation("no_numbers", "❌ Tidak ada nomor valid. Kirim lagi.")
	}
	bt, err := b.batch(step.token)
	if err != nil {
		return err
	}

	src := bt.Files[0]
	blocks := vcf.ParseBlocks(src.Content)
	kept, removed := vcf.RemoveByPhones(blocks, valid)
	if len(kept) > 0 {
		if _, err := b.deliver(in, []outFile{{Name: src.Name, Data: vcf.Dump(kept)}}); err != nil {
			return err
		}
	}
	b.complete(in, featRemoveCtc, step.token)
	return b.say(in, removeSummary(src.Name, len(blocks), removed, len(kept)), nil)
}

func removeSummary(name string, before, removed, after int) string {
	return strings.Join([]string{
		"🗑️ *REMOVE CTC VCF selesai*",
		hr,
		fmt.Sprintf("📄 *File:* `%s`", format.Code(name)),
		fmt.Sprintf("👥 *Sebelum:* %d kontak", before),
		fmt.Sprintf("➖ *Dihapus:* %d kontak", removed),
		fmt.Sprintf("👤 *Sesudah:* %d kontak", after),
		hr,
		"Ketik */start* untuk kembali ke menu utama.",
	}, "\n")
}
