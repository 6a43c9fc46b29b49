package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbAddCtc     = "add_ctc_vcf"
	cbAddCtcName = "addctc_name"
	cbAddCtcDone = "addctc_done"
	featAddCtc   = "add_ctc"

	addPreview = 10
)

type (
	// addPhones waits for the numbers to append.
	addPhones struct{ token string }
	// addChoice holds the queued numbers until a button is pressed.
	addChoice struct {
		token  string
		phones []string
	}
	// addName waits for the base name of the queued numbers.
	addName struct {
		token  string
		phones []string
	}
)

func (addPhones) StepName() string { return "await_phones" }
func (addChoice) StepName() string { return "await_choice" }
func (addName) StepName() string   { return "await_base" }

func (b *Bot) registerAddCtc() {
	b.on(cbAddCtc, true, b.startAddCtc)
	b.on(cbAddCtcName, true, func(ev Event) error {
		step, err := b.addQueue(ev)
		if err != nil {
			return err
		}
		b.advance(ev.UserID, featAddCtc, addName(step))
		return b.show(ev, "📝 Ketik *nama dasar kontak*.\n_Contoh: Admin, HHD, Kontak Baru_", nil)
	})
	b.on(cbAddCtcDone, true, func(ev Event) error {
		step, err := b.addQueue(ev)
		if err != nil {
			return err
		}
		return b.appendContacts(ev, step.token, step.phones, "")
	})
	b.sessions.Handle(featAddCtc, b.onAddCtc)
}

// addQueue returns the queued numbers when the pressed button belongs to
// the current batch.
func (b *Bot) addQueue(ev Event) (addChoice, error) {
	s, ok := b.sessions.Get(ev.UserID)
	if !ok || s.Feature != featAddCtc {
		return addChoice{}, apperrSessionGone()
	}
	step, ok := s.Step.(addChoice)
	if !ok || step.token != ev.Data {
		return addChoice{}, apperr.ErrRaceNoop
	}
	return step, nil
}

func (b *Bot) startAddCtc(ev Event) error {
	user := ev.UserID
	rules := upload.Rules{
		Feature:  featAddCtc,
		Accept:   []string{".vcf"},
		Unit:     "kontak",
		Measure:  countVcf,
		MaxFiles: 1,
		Replace:  true,
		OnFinal: func(ctx context.Context, bt upload.Batch) error {
			if !b.advance(user, featAddCtc, addPhones{token: bt.Token}) {
				return nil
			}
			_, err := b.msg.Send(ctx, bt.Key.ChatID, "📞 Kirim *nomor telepon* (multi-baris).", nil)
			return err
		},
	}
	return b.startUpload(ev, rules, "➕ *ADD CTC VCF*\n"+hr+"\n"+
		"📎 Upload *1 file .vcf* terlebih dahulu.\n"+
		"Lalu kirim *daftar nomor* (multi-baris, 1 baris = 1 nomor).")
}

func (b *Bot) onAddCtc(in Event, s state.Session) error {
	if in.Doc != nil {
		return b.submit(in, featAddCtc)
	}
	switch step := s.Step.(type) {
	case addPhones:
		phones := vcf.NormalizeList(in.Text)
		if len(phones) == 0 {
			return apperr.Validation("no_numbers", "❌ Tidak ada nomor valid. Kirim lagi.")
		}
		bt, err := b.batch(step.token)
		if err != nil {
			return err
		}
		b.advance(in.UserID, featAddCtc, addChoice{token: step.token, phones: phones})
		names := addNames(vcf.ParseBlocks(bt.Files[0].Content), phones, "")
		return b.say(in, addQueueText(phones, names), keyboard.InlineButtonsRows([]keyboard.InlineBtn{
			keyboard.Data("📝 Nama Khusus", cbAddCtcName, step.token),
			keyboard.Data("✅ Selesai", cbAddCtcDone, step.token),
		}))
	case addChoice:
		return apperr.Validation("use_buttons", "👆 Pilih *Nama Khusus* atau *Selesai* pada tombol di atas.")
	case addName:
		base := vcf.CleanName(in.Text)
		if base == "" {
			return apperr.Validation("bad_name", "❌ Nama dasar kosong. Ketik lagi.")
		}
		return b.appendContacts(in, step.token, step.phones, base)
	}
	return b.submit(in, featAddCtc)
}

// addNames names new cards: a custom base numbered from 1, else the
// numbering already in the file continued, else the first FN, else the
// number itself.
func addNames(existing []vcf.Block, phones []string, custom string) []string {
	names := make([]string, len(phones))
	if custom != "" {
		for i, b := range vcf.FromPhones(phones, custom, vcf.Numbering{Force: true}) {
			names[i], _ = vcf.DisplayName(b)
		}
		return names
	}
	all := vcf.DisplayNames(existing)
	if base, next, ok := vcf.DetectSequence(all); ok {
		for i := range phones {
			names[i] = fmt.Sprintf("%s %d", base, next+i)
		}
		return names
	}
	for i, p := range phones {
		names[i] = p
		if len(all) > 0 {
			names[i] = all[0]
		}
	}
	return names
}

func addQueueText(phones, names []string) string {
	lines := []string{
		"🗒️ *Antrean dibuat*",
		hr,
		fmt.Sprintf("• *Total nomor:* %d", len(phones)),
		fmt.Sprintf("• *Preview (maks %d):*", addPreview),
	}
	for i, p := range phones {
		if i == addPreview-1 && len(phones) > addPreview {
			lines = append(lines, fmt.Sprintf("• … → %s", phones[len(phones)-1]))
			break
		}
		lines = append(lines, fmt.Sprintf("• %s → %s", format.MD(names[i]), p))
	}
	return strings.Join(append(lines, hr, "Pilih aksi:"), "\n")
}

func (b *Bot) appendContacts(ev Event, token string, phones []string, custom string) error {
	bt, err := b.batch(token)
	if err != nil {
		return err
	}
	src := bt.Files[0]
	blocks := vcf.ParseBlocks(src.Content)
	names := addNames(blocks, phones, custom)
	for i, p := range phones {
		blocks = append(blocks, vcf.NewCard(names[i], p))
	}
	if _, err := b.deliver(ev, []outFile{{Name: src.Name, Data: vcf.Dump(blocks)}}); err != nil {
		return err
	}
	b.complete(ev, featAddCtc, token)
	return b.say(ev, strings.Join([]string{
		"✅ *ADD CTC VCF selesai*",
		hr,
		fmt.Sprintf("📁 *File:* `%s`", format.Code(src.Name)),
		fmt.Sprintf("📊 *Ditambah:* %d kontak", len(phones)),
		hr,
		"Ketik */start* untuk kembali ke menu utama.",
	}, "\n"), nil)
}
