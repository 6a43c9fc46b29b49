package features

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/callbacks"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbSplit       = "split_files"
	cbSplitCustom = "split_custom"
	cbSplitDone   = "split_done"
	featSplit     = "split"
)

type (
	// splitCount waits for the number of output files.
	splitCount struct{ token string }
	// splitChoice waits for the custom-name or done button.
	splitChoice struct {
		token string
		parts int
	}
	// splitName waits for the base name of the output files.
	splitName struct {
		token string
		parts int
	}
)

func (splitCount) StepName() string  { return "await_count" }
func (splitChoice) StepName() string { return "await_choice" }
func (splitName) StepName() string   { return "await_base" }

func (b *Bot) registerSplit() {
	b.on(cbSplit, true, b.startSplit)
	b.on(cbSplitDone, true, func(ev Event) error {
		token, parts, err := splitPayload(ev.Data)
		if err != nil {
			return err
		}
		return b.doSplit(ev, token, parts, "")
	})
	b.on(cbSplitCustom, true, func(ev Event) error {
		token, parts, err := splitPayload(ev.Data)
		if err != nil {
			return err
		}
		if _, err := b.batch(token); err != nil {
			return err
		}
		if !b.advance(ev.UserID, featSplit, splitName{token: token, parts: parts}) {
			return apperrSessionGone()
		}
		return b.show(ev, "📝 Ketik *nama dasar* file (wajib diakhiri angka).\nContoh: `kontak1`, `data-5`", nil)
	})
	b.sessions.Handle(featSplit, b.onSplit)
}

func splitPayload(data string) (string, int, error) {
	f := callbacks.Fields(data)
	if len(f) != 2 {
		return "", 0, apperrSessionGone()
	}
	n, err := strconv.Atoi(f[1])
	if err != nil || n <= 0 {
		return "", 0, apperrSessionGone()
	}
	return f[0], n, nil
}

func apperrSessionGone() error { return apperr.StateMismatch(msgSessionGone) }

// splitItems reads the numbers of a TXT or the TEL values of a VCF.
func splitItems(name, content string) int {
	return len(phonesOf(upload.File{Name: name, Content: content}))
}

func (b *Bot) startSplit(ev Event) error {
	user := ev.UserID
	rules := upload.Rules{
		Feature:  featSplit,
		Accept:   []string{".txt", ".vcf"},
		Unit:     "nomor",
		Measure:  splitItems,
		MaxItems: b.cfg.MaxPhones,
		Replace:  true,
		OnFinal: func(ctx context.Context, bt upload.Batch) error {
			if !b.advance(user, featSplit, splitCount{token: bt.Token}) {
				return nil
			}
			_, err := b.msg.Send(ctx, bt.Key.ChatID, fmt.Sprintf(
				"🧮 Masukkan jumlah file untuk split:\n📄 Total nomor: %d", bt.Total()), nil)
			return err
		},
	}
	return b.startUpload(ev, rules, "✂️ *SPLIT TXT/VCF*\n"+hr+"\n"+
		"📤 Upload *satu* file .txt atau .vcf.\nFile terakhir yang dikirim yang dipakai.")
}

func (b *Bot) onSplit(in Event, s state.Session) error {
	if in.Doc != nil {
		return b.submit(in, featSplit)
	}
	switch step := s.Step.(type) {
	case splitCount:
		n, err := positive(in.Text)
		if err != nil {
			return err
		}
		bt, err := b.batch(step.token)
		if err != nil {
			return err
		}
		total := bt.Total()
		if total == 0 {
			return apperr.Validation("nothing_to_split", "❌ File tidak berisi nomor.")
		}
		b.advance(in.UserID, featSplit, splitChoice{token: step.token, parts: n})
		payload := callbacks.Join(step.token, strconv.Itoa(n))
		return b.say(in, fmt.Sprintf("✅ Siap split %d nomor menjadi %d file\n≈ %d nomor per file.\n\nPilih opsi:",
			total, n, (total+n-1)/n),
			keyboard.InlineButtonsRows([]keyboard.InlineBtn{
				keyboard.Data("📝 Custom Name", cbSplitCustom, payload),
				keyboard.Data("✅ Selesai", cbSplitDone, payload),
			}))
	case splitName:
		base := strings.TrimSpace(in.Text)
		if vcf.SequenceNames(base, 1) == nil {
			return apperr.Validation("base_without_number", "❌ Nama dasar harus diakhiri angka.")
		}
		return b.doSplit(in, step.token, step.parts, base)
	case splitChoice:
		return apperr.Validation("use_buttons", "👆 Pilih *Custom Name* atau *Selesai* pada tombol di atas.")
	}
	return b.submit(in, featSplit)
}

func (b *Bot) doSplit(ev Event, token string, parts int, base string) error {
	bt, err := b.batch(token)
	if err != nil {
		return err
	}
	src := bt.Files[0]
	extension := ext(src.Name)
	chunks := vcf.ChunkEvenly(phonesOf(src), parts)

	var names []string
	if base != "" {
		names = vcf.SequenceFilenames(base, len(chunks), extension)
	} else {
		for i := range chunks {
			names = append(names, fmt.Sprintf("%s_%d%s", stem(src.Name), i+1, extension))
		}
	}

	files := make([]outFile, len(chunks))
	next := 1
	for i, c := range chunks {
		data := vcf.Text(c)
		if extension == ".vcf" {
			data = vcf.Dump(vcf.FromPhones(c, "Kontak", vcf.Numbering{Start: next}))
			next += len(c)
		}
		files[i] = outFile{Name: names[i], Data: data}
	}
	sent, err := b.deliver(ev, files)
	if err != nil {
		return err
	}
	b.complete(ev, featSplit, token)
	return b.say(ev, strings.Join([]string{
		"📊 *Ringkasan SPLIT*",
		hr,
		fmt.Sprintf("📂 File berhasil: %d", sent),
		fmt.Sprintf("📄 Total nomor: %d", bt.Total()),
		hr,
		"Gunakan /start untuk kembali ke menu utama.",
	}, "\n"), nil)
}
