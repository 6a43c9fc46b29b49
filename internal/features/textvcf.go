package features

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbTextFormat   = "text_format"
	cbTextInput    = "text_input"
	cbInputAddNavy = "input_add_navy"
	cbInputOnly    = "input_admin_only"
	featTextVcf    = "text_vcf"

	previewContacts = 12
)

type (
	// textFormat waits for a FORMAT text.
	textFormat struct{}
	// textPhones waits for the numbers of the next group; navy marks the
	// second group.
	textPhones struct {
		draft textDraft
		navy  bool
	}
	// textName waits for the name of the numbers just sent.
	textName struct {
		draft textDraft
		navy  bool
	}
	// textChoice waits for the add-contact or next button.
	textChoice struct{ draft textDraft }
	// textFile waits for the output file name.
	textFile struct{ draft textDraft }
)

func (textFormat) StepName() string { return "await_format" }
func (s textPhones) StepName() string {
	if s.navy {
		return "await_navy_phones"
	}
	return "await_admin_phones"
}
func (s textName) StepName() string {
	if s.navy {
		return "await_navy_name"
	}
	return "await_admin_name"
}
func (textChoice) StepName() string { return "await_choice" }
func (textFile) StepName() string   { return "await_filename" }

// textDraft is what the INPUT wizard collected so far.
type textDraft struct {
	AdminPhones []string
	AdminName   string
	NavyPhones  []string
	NavyName    string
}

func (b *Bot) registerTextVcf() {
	b.on(cbTextFormat, true, func(ev Event) error {
		b.reset(ev)
		b.sessions.Set(ev.UserID, featTextVcf, textFormat{})
		return b.show(ev, formatHelp("📝 *MODE FORMAT — CV ADMIN/NAVY*\n"+hr+"\nKirim teks dengan susunan:"), nil)
	})
	b.on(cbTextInput, true, func(ev Event) error {
		b.reset(ev)
		b.sessions.Set(ev.UserID, featTextVcf, textPhones{})
		return b.show(ev, inputIntro("🗒️ *Kirim Nomor Admin/Navy dulu.*"), nil)
	})
	b.on(cbInputAddNavy, true, func(ev Event) error {
		d, err := b.textChoiceDraft(ev)
		if err != nil {
			return err
		}
		b.sessions.Set(ev.UserID, featTextVcf, textPhones{draft: d, navy: true})
		return b.show(ev, inputIntro("🗒️ *Kirim Nomor Admin/Navy berikutnya.*"), nil)
	})
	b.on(cbInputOnly, true, func(ev Event) error {
		d, err := b.textChoiceDraft(ev)
		if err != nil {
			return err
		}
		b.sessions.Set(ev.UserID, featTextVcf, textFile{draft: d})
		return b.show(ev, filePrompt, nil)
	})
	b.sessions.Handle(featTextVcf, b.onTextVcf)
}

const filePrompt = "📝 *Nama File Output*\nMasukkan *nama file VCF* (boleh tanpa *.vcf*)."

func inputIntro(head string) string {
	return "⌨️ *MODE INPUT — CV ADMIN/VCF*\n\n" + head + "\n" +
		"• 1 baris = 1 nomor\n" +
		"• Simbol/spasi dibersihkan otomatis\n" +
		"• Perhatikan *kode negara* agar terbaca"
}

func formatHelp(head string) string {
	return head + "\n```\nnama_file_vcf\n\nNama Kontak 1\n628xxx\n628yyy\n\nNama Kontak 2\n628zzz\n```\n" +
		"• Baris-1: nama file (tanpa .vcf boleh)\n" +
		"• Baris-2: *KOSONG* (pemisah)\n" +
		"• Tiap kontak dipisah baris kosong\n" +
		"• Dalam satu kontak: daftar nomor di baris berikutnya"
}

func (b *Bot) textChoiceDraft(ev Event) (textDraft, error) {
	s, ok := b.sessions.Get(ev.UserID)
	if !ok || s.Feature != featTextVcf {
		return textDraft{}, apperrSessionGone()
	}
	step, ok := s.Step.(textChoice)
	if !ok {
		return textDraft{}, apperr.ErrRaceNoop
	}
	return step.draft, nil
}

func (b *Bot) onTextVcf(in Event, s state.Session) error {
	if in.Doc != nil {
		return apperr.Validation("text_only", "📝 Fitur ini menerima *teks*, bukan file.")
	}
	switch step := s.Step.(type) {
	case textFormat:
		return b.textFromFormat(in)
	case textPhones:
		phones := vcf.NormalizeList(in.Text)
		if len(phones) == 0 {
			return apperr.Validation("no_numbers", "⚠️ Nomor tidak valid. Kirim *1 nomor per baris*.")
		}
		d := step.draft
		if step.navy {
			d.NavyPhones = phones
		} else {
			d.AdminPhones = phones
		}
		b.sessions.Set(in.UserID, featTextVcf, textName{draft: d, navy: step.navy})
		return b.say(in, "👤 *Nama Kontak*\nMasukkan *nama kontak* untuk nomor yang baru kamu kirim.", nil)
	case textName:
		name := vcf.CleanName(in.Text)
		if name == "" {
			name = "Kontak"
		}
		d := step.draft
		if step.navy {
			d.NavyName = name
			b.sessions.Set(in.UserID, featTextVcf, textFile{draft: d})
			return b.say(in, filePrompt, nil)
		}
		d.AdminName = name
		b.sessions.Set(in.UserID, featTextVcf, textChoice{draft: d})
		return b.say(in, "Pilih tindakan:\n"+
			"• *Tambah kontak* → kembali ke input *nomor* untuk kontak berikutnya\n"+
			"• *Next* → lanjut *minta nama file*",
			keyboard.InlineButtonsRows([]keyboard.InlineBtn{
				keyboard.Data("➕ Tambah kontak", cbInputAddNavy),
				keyboard.Data("▶️ Next", cbInputOnly),
			}))
	case textChoice:
		return apperr.Validation("use_buttons", "👆 Pilih *Tambah kontak* atau *Next* pada tombol di atas.")
	case textFile:
		name, err := fileName(in.Text, ".vcf")
		if err != nil {
			return err
		}
		return b.textFromDraft(in, step.draft, name)
	}
	return apperrSessionGone()
}

func (b *Bot) textFromFormat(in Event) error {
	if n := utf8.RuneCountInString(in.Text); n > b.cfg.MaxFormatChars {
		return apperr.Capacity("text_too_large", fmt.Sprintf(
			"❌ Teks terlalu besar (>%d karakter). Potong input atau kirim bertahap.", b.cfg.MaxFormatChars))
	}
	res, ok := vcf.ParseFormatText(in.Text)
	if !ok {
		b.finish(in, featTextVcf)
		return apperr.Validation("bad_format", formatHelp("❌ *Format salah.* Contoh:"))
	}
	name, err := fileName(res.Filename, ".vcf")
	if err != nil {
		return err
	}
	b.finish(in, featTextVcf)
	return b.sendWithInfo(in, name, vcf.Dump(res.Blocks), res.Stats)
}

func (b *Bot) textFromDraft(in Event, d textDraft, name string) error {
	if len(d.AdminPhones) == 0 || d.AdminName == "" {
		return apperr.StateMismatch("❌ Data belum lengkap. /start untuk mulai lagi.")
	}
	b.finish(in, featTextVcf)
	blocks := vcf.FromPhones(d.AdminPhones, d.AdminName, vcf.Numbering{Force: true})
	stats := []vcf.NameCount{{Name: d.AdminName, Count: len(d.AdminPhones)}}
	if len(d.NavyPhones) > 0 {
		blocks = append(blocks, vcf.FromPhones(d.NavyPhones, d.NavyName, vcf.Numbering{Force: true})...)
		stats = append(stats, vcf.NameCount{Name: d.NavyName, Count: len(d.NavyPhones)})
	}
	return b.sendWithInfo(in, name, vcf.Dump(blocks), stats)
}

// sendWithInfo sends the file first and the summary after it.
func (b *Bot) sendWithInfo(ev Event, name, data string, stats []vcf.NameCount) error {
	if _, err := b.deliver(ev, []outFile{{Name: name, Data: data}}); err != nil {
		return err
	}
	return b.say(ev, textInfo(name, stats), nil)
}

func textInfo(name string, stats []vcf.NameCount) string {
	numbers := 0
	for _, s := range stats {
		numbers += s.Count
	}
	lines := []string{
		fmt.Sprintf("✅ *Berhasil membuat:* `%s`", format.Code(name)),
		fmt.Sprintf("📁 %d kontak · 📞 %d nomor", len(stats), numbers),
		hr,
	}
	if len(stats) > 0 {
		title := "📊 *Ringkasan*"
		if len(stats) > previewContacts {
			title += fmt.Sprintf(" _(menampilkan ≤ %d)_", previewContacts)
		}
		lines = append(lines, title)
		for i, s := range stats {
			if i == previewContacts {
				lines = append(lines, fmt.Sprintf("_dan %d entri lain tidak ditampilkan_", len(stats)-previewContacts))
				break
			}
			lines = append(lines, fmt.Sprintf("• *%s* — %d nomor", format.MD(s.Name), s.Count))
		}
		lines = append(lines, hr)
	}
	return strings.Join(append(lines, "Ketik */start* untuk kembali ke menu."), "\n")
}
