package features

import (
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbToText   = "txt_vcf_to_text"
	featToText = "to_text"
)

// toTextFiles waits for files; each one is answered as it arrives.
type toTextFiles struct{}

func (toTextFiles) StepName() string { return "await_files" }

func (b *Bot) registerToText() {
	b.on(cbToText, true, func(ev Event) error {
		b.reset(ev)
		b.sessions.Set(ev.UserID, featToText, toTextFiles{})
		return b.show(ev, "📄 *TXT/VCF TO TEXT*\n"+hr+"\n📂 Upload file *.txt* atau *.vcf*.", nil)
	})
	b.sessions.Handle(featToText, b.onToText)
}

func (b *Bot) onToText(in Event, _ state.Session) error {
	if in.Doc == nil {
		return apperr.Validation("need_document", "📂 Upload file *.txt* atau *.vcf*.")
	}
	kind := ext(in.Doc.Name)
	if kind != ".txt" && kind != ".vcf" {
		return apperr.Validation("bad_extension", "❌ Hanya menerima file .txt atau .vcf")
	}
	if limit := b.cfg.MaxFileBytes; limit > 0 && in.Doc.Size > limit {
		return apperr.Capacity("file_too_large", fmt.Sprintf("❌ File terlalu besar (maks %d MB).", limit>>20))
	}
	data, err := b.dl.Download(in.Ctx, in.Doc.FileID, b.cfg.MaxFileBytes)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return err
		}
		return apperr.Transport("download", err)
	}
	text, err := upload.Decode(data)
	if err != nil {
		return err
	}

	var (
		items []string
		unit  = "baris"
	)
	if kind == ".vcf" {
		items, unit = vcf.PhonesFromBlocks(vcf.ParseBlocks(text)), "nomor"
	} else {
		for _, l := range vcf.Lines(text) {
			if strings.TrimSpace(l) != "" {
				items = append(items, l)
			}
		}
	}
	if len(items) == 0 {
		return apperr.Validation("empty_file", "❌ File kosong atau tidak ada nomor.")
	}

	for i, block := range codeBlocks(items, textLimit) {
		msg := block
		if i == 0 {
			msg = fmt.Sprintf("✅ *Isi file %s:*\n%s", format.MD(in.Doc.Name), block)
		}
		if err := b.say(in, msg, nil); err != nil {
			return err
		}
	}
	return b.say(in, strings.Join([]string{
		"📊 *Ringkasan TXT/VCF → TEXT*",
		hr,
		fmt.Sprintf("📂 File: `%s`", format.Code(in.Doc.Name)),
		fmt.Sprintf("📄 Total %s: %d", unit, len(items)),
		hr,
		"Gunakan /start untuk kembali ke menu utama.",
	}, "\n"), nil)
}
