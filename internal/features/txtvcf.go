package features

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbTxtVcfV1     = "cv_v1"
	cbTxtVcfV2     = "cv_v2"
	cbOutDefault   = "output_default"
	cbOutCustom    = "output_custom"
	cbV2Format     = "v2_format"
	cbV2Input      = "v2_input"
	featTxtVcfV1   = "txt_vcf_v1"
	featTxtVcfV2   = "txt_vcf_v2"
	v2ExampleInput = "`Admin, kontak, 50, 10, 5`"
)

type (
	// v1Choice waits for the default or custom button.
	v1Choice struct{ token string }
	// v1Files waits for the numbered base of the output file names.
	v1Files struct{ token string }
	// v1Contact waits for the contact name; names is nil in default mode.
	v1Contact struct {
		token string
		names []string
	}

	// v2Choice waits for the FORMAT or INPUT button.
	v2Choice struct{ token string }
	// v2Format waits for the five comma separated parameters.
	v2Format struct{ token string }
	// v2Wizard collects the same parameters one per message.
	v2Wizard struct {
		token  string
		stage  int
		params v2Params
	}
)

func (v1Choice) StepName() string  { return "await_mode" }
func (v1Files) StepName() string   { return "await_file_base" }
func (v1Contact) StepName() string { return "await_contact" }
func (v2Choice) StepName() string  { return "await_mode" }
func (v2Format) StepName() string  { return "await_format" }
func (w v2Wizard) StepName() string {
	return "wizard_" + strconv.Itoa(w.stage)
}

// v2Params are the batch conversion parameters.
type v2Params struct {
	Contact string
	Base    string
	PerFile int
	Files   int
	Start   int
}

func (b *Bot) registerTxtVcf() {
	b.on(cbTxtVcfV1, true, b.startTxtVcfV1)
	b.on(cbTxtVcfV2, true, b.startTxtVcfV2)
	b.on(cbOutDefault, true, b.v1Default)
	b.on(cbOutCustom, true, b.v1Custom)
	b.on(cbV2Format, true, b.v2FormatMode)
	b.on(cbV2Input, true, b.v2InputMode)
	b.sessions.Handle(featTxtVcfV1, b.onTxtVcfV1)
	b.sessions.Handle(featTxtVcfV2, b.onTxtVcfV2)
}

func txtRules(feature string, actions func(string) *tele.ReplyMarkup, onFinal func(context.Context, upload.Batch) error) upload.Rules {
	return upload.Rules{
		Feature: feature,
		Accept:  []string{".txt"},
		Unit:    "nomor",
		Measure: countPhones,
		Actions: actions,
		OnFinal: onFinal,
	}
}

// ---- V1: one VCF per TXT ----

func (b *Bot) startTxtVcfV1(ev Event) error {
	user := ev.UserID
	rules := txtRules(featTxtVcfV1,
		func(token string) *tele.ReplyMarkup {
			return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
				keyboard.Data("🔹 Default", cbOutDefault, token),
				keyboard.Data("🎨 Custom", cbOutCustom, token),
			})
		},
		func(_ context.Context, bt upload.Batch) error {
			b.advance(user, featTxtVcfV1, v1Choice{token: bt.Token})
			return nil
		})
	rules.MaxItems = b.cfg.MaxPhones
	return b.startUpload(ev, rules, "📤 *Upload file TXT Anda*\n"+hr+"\n"+
		"• Upload satu atau beberapa file .txt\n"+
		"• Setelah selesai pilih *Default* (nama VCF = nama TXT) atau *Custom*")
}

func (b *Bot) v1Default(ev Event) error {
	bt, err := b.batch(ev.Data)
	if err != nil {
		return err
	}
	if !b.advance(ev.UserID, featTxtVcfV1, v1Contact{token: bt.Token}) {
		return apperrSessionGone()
	}
	return b.say(ev, strings.Join([]string{
		"🔧 *Mode Default dipilih*",
		hr,
		fmt.Sprintf("📁 *File:* %d", len(bt.Files)),
		fmt.Sprintf("📞 *Nomor:* %d", bt.Total()),
		"📝 *Nama VCF* = sama dengan nama TXT",
		hr,
		"👤 *Ketik nama kontak:*",
	}, "\n"), nil)
}

func (b *Bot) v1Custom(ev Event) error {
	bt, err := b.batch(ev.Data)
	if err != nil {
		return err
	}
	if !b.advance(ev.UserID, featTxtVcfV1, v1Files{token: bt.Token}) {
		return apperrSessionGone()
	}
	return b.say(ev, strings.Join([]string{
		"🎨 *Mode Custom dipilih*",
		hr,
		fmt.Sprintf("📁 *File:* %d", len(bt.Files)),
		fmt.Sprintf("📞 *Nomor:* %d", bt.Total()),
		hr,
		"💡 *Contoh nama file:*",
		"• `pudidi1` → pudidi1.vcf, pudidi2.vcf, …",
		"• `kontak-5` → kontak-5.vcf, kontak-6.vcf, …",
		hr,
		"✏️ *Masukkan nama file yang diakhiri angka:*",
	}, "\n"), nil)
}

func (b *Bot) onTxtVcfV1(in Event, s state.Session) error {
	if in.Doc != nil {
		return b.submit(in, featTxtVcfV1)
	}
	switch step := s.Step.(type) {
	case v1Choice:
		return apperr.Validation("use_buttons", "👆 Pilih *Default* atau *Custom* pada ringkasan upload.")
	case v1Files:
		bt, err := b.batch(step.token)
		if err != nil {
			return err
		}
		names := vcf.SequenceFilenames(baseName(in.Text, ".vcf"), len(bt.Files), ".vcf")
		if names == nil {
			return apperr.Validation("base_without_number",
				"❌ Nama dasar harus diakhiri angka.\nContoh: `kontak1` atau `data-5`")
		}
		b.advance(in.UserID, featTxtVcfV1, v1Contact{token: step.token, names: names})
		return b.say(in, strings.Join([]string{
			"🎨 *Pattern Custom diset!*",
			hr,
			fmt.Sprintf("📁 *File:* %d", len(bt.Files)),
			fmt.Sprintf("📞 *Nomor:* %d", bt.Total()),
			fmt.Sprintf("📝 *Range nama:* %s … %s", names[0], names[len(names)-1]),
			hr,
			"👤 *Ketik nama kontak:*",
		}, "\n"), nil)
	case v1Contact:
		name, err := contactName(in.Text)
		if err != nil {
			return err
		}
		bt, err := b.batch(step.token)
		if err != nil {
			return err
		}
		return b.runV1(in, bt, name, step.names)
	}
	return b.submit(in, featTxtVcfV1)
}

// runV1 numbers contacts globally across every file in upload order.
func (b *Bot) runV1(ev Event, bt upload.Batch, name string, names []string) error {
	files := make([]outFile, 0, len(bt.Files))
	next, total := 1, 0
	for i, f := range bt.Files {
		phones := vcf.NormalizeList(f.Content)
		out := stem(f.Name) + ".vcf"
		if names != nil {
			out = names[i]
		}
		files = append(files, outFile{Name: out, Data: vcf.Dump(vcf.FromPhones(phones, name, vcf.Numbering{Start: next}))})
		next += len(phones)
		total += len(phones)
	}
	sent, err := b.deliver(ev, files)
	if err != nil {
		return err
	}
	b.complete(ev, featTxtVcfV1, bt.Token)
	title, extra := "✅ *V1 Default Selesai*", ""
	if names != nil {
		title, extra = "✅ *V1 Custom Selesai*", "🎨 *Pattern custom diterapkan (penomoran global)*"
	}
	lines := []string{
		title,
		hr,
		fmt.Sprintf("📁 *File berhasil:* %d", sent),
		fmt.Sprintf("👤 *Nama kontak:* %s", name),
		fmt.Sprintf("📞 *Total kontak:* %d", total),
	}
	if extra != "" {
		lines = append(lines, extra)
	}
	if failed := len(files) - sent; failed > 0 {
		lines = append(lines, fmt.Sprintf("❌ *Kosong:* %d file", failed))
	}
	return b.say(ev, strings.Join(append(lines, hr, footerStart), "\n"), nil)
}

// ---- V2: merged numbers cut into batches ----

func (b *Bot) startTxtVcfV2(ev Event) error {
	user := ev.UserID
	rules := txtRules(featTxtVcfV2,
		func(token string) *tele.ReplyMarkup {
			return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
				keyboard.Data("📄 FORMAT", cbV2Format, token),
				keyboard.Data("⌨️ INPUT", cbV2Input, token),
			})
		},
		func(_ context.Context, bt upload.Batch) error {
			b.advance(user, featTxtVcfV2, v2Choice{token: bt.Token})
			return nil
		})
	rules.MaxFiles = b.cfg.MaxFilesV2
	rules.MaxItems = b.cfg.MaxPhones
	return b.startUpload(ev, rules, "🚀 *Mode BATCH — Upload File TXT*\n"+hr+"\n"+
		fmt.Sprintf("📂 Upload 1–%d file TXT\n", b.cfg.MaxFilesV2)+
		"• Jika lebih dari 1 file → otomatis digabung\n"+hr)
}

// mergedPhones joins every file of a batch into one list of distinct numbers.
func mergedPhones(bt upload.Batch) []string {
	var all []string
	for _, c := range bt.Contents() {
		all = append(all, vcf.NormalizeList(c)...)
	}
	return uniq(all)
}

func (b *Bot) v2FormatMode(ev Event) error {
	bt, err := b.batch(ev.Data)
	if err != nil {
		return err
	}
	if !b.advance(ev.UserID, featTxtVcfV2, v2Format{token: bt.Token}) {
		return apperrSessionGone()
	}
	return b.say(ev, strings.Join([]string{
		"📄 *MODE FORMAT — V2*",
		hr,
		fmt.Sprintf("📞 *%d nomor unik* siap diproses", len(mergedPhones(bt))),
		hr,
		"Ketik *5 parameter* dipisah koma:",
		"`nama_kontak, nama_file, nomor_per_file, jumlah_file, start_num`",
		"",
		"Contoh:",
		v2ExampleInput,
		"",
		"*Hasil:*",
		"`kontak5.vcf … kontak14.vcf` (nama file mulai dari 5)",
		"Penomoran *nama kontak* tetap global & berurutan.",
	}, "\n"), nil)
}

func (b *Bot) v2InputMode(ev Event) error {
	bt, err := b.batch(ev.Data)
	if err != nil {
		return err
	}
	if !b.advance(ev.UserID, featTxtVcfV2, v2Wizard{token: bt.Token, stage: 1}) {
		return apperrSessionGone()
	}
	return b.say(ev, strings.Join([]string{
		"⌨️ *MODE INPUT — V2*",
		hr,
		fmt.Sprintf("📞 *%d nomor unik* siap diproses", len(mergedPhones(bt))),
		hr,
		"Langkah 1/5 — *Nama kontak*",
		"📝 Ketik *nama kontak* untuk VCF.",
	}, "\n"), nil)
}

// parseV2Format reads "nama_kontak, nama_file, nomor_per_file, jumlah_file, start_num".
func parseV2Format(text string) (v2Params, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 5 {
		return v2Params{}, apperr.Validation("bad_format",
			"❌ Format salah! Harus *5 parameter*.\n\nContoh: "+v2ExampleInput)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	p := v2Params{Contact: vcf.CleanName(parts[0]), Base: baseName(parts[1], ".vcf")}
	nums := []*int{&p.PerFile, &p.Files, &p.Start}
	for i, dst := range nums {
		n, err := strconv.Atoi(parts[2+i])
		if err != nil {
			return v2Params{}, apperr.Validation("bad_number", "❌ Parameter angka tidak valid!")
		}
		if n <= 0 {
			return v2Params{}, apperr.Validation("bad_number", "❌ Semua angka harus > 0.")
		}
		*dst = n
	}
	if p.Contact == "" {
		return v2Params{}, apperr.Validation("bad_name", "❌ Nama kontak tidak valid!")
	}
	if _, err := fileName(p.Base, ".vcf"); err != nil {
		return v2Params{}, err
	}
	return p, nil
}

var v2Prompts = map[int]func(total int) string{
	2: func(int) string {
		return "Langkah 2/5 — *Nama file dasar* (tanpa *.vcf*).\n🧾 Contoh: `kontak`, `batch-`, `data_`"
	},
	3: func(total int) string {
		return fmt.Sprintf("Langkah 3/5 — *Jumlah nomor per file* (angka > 0).\nℹ️ *Total tersedia:* %d nomor.", total)
	},
	4: func(int) string { return "Langkah 4/5 — *Jumlah file* (angka > 0)." },
	5: func(int) string {
		return "Langkah 5/5 — *Start urutan angka nama file* (angka > 0).\n🧾 Contoh: 5 → hasil `nama5.vcf, nama6.vcf, …`"
	},
}

func (b *Bot) onTxtVcfV2(in Event, s state.Session) error {
	if in.Doc != nil {
		return b.submit(in, featTxtVcfV2)
	}
	switch step := s.Step.(type) {
	case v2Choice:
		return apperr.Validation("use_buttons", "👆 Pilih *FORMAT* atau *INPUT* pada ringkasan upload.")
	case v2Format:
		p, err := parseV2Format(in.Text)
		if err != nil {
			return err
		}
		return b.runV2(in, step.token, p, "FORMAT")
	case v2Wizard:
		return b.v2WizardStep(in, step)
	}
	return b.submit(in, featTxtVcfV2)
}

func (b *Bot) v2WizardStep(in Event, w v2Wizard) error {
	switch w.stage {
	case 1:
		name, err := contactName(in.Text)
		if err != nil {
			return err
		}
		w.params.Contact = name
	case 2:
		if _, err := fileName(in.Text, ".vcf"); err != nil {
			return err
		}
		w.params.Base = baseName(in.Text, ".vcf")
	default:
		n, err := positive(in.Text)
		if err != nil {
			return err
		}
		switch w.stage {
		case 3:
			w.params.PerFile = n
		case 4:
			w.params.Files = n
		case 5:
			w.params.Start = n
			return b.runV2(in, w.token, w.params, "INPUT")
		}
	}
	bt, err := b.batch(w.token)
	if err != nil {
		return err
	}
	w.stage++
	b.advance(in.UserID, featTxtVcfV2, w)
	return b.say(in, v2Prompts[w.stage](len(mergedPhones(bt))), nil)
}

// runV2 checks there are enough numbers before building anything, so a
// too-large request can be retried.
func (b *Bot) runV2(ev Event, token string, p v2Params, mode string) error {
	bt, err := b.batch(token)
	if err != nil {
		return err
	}
	phones := mergedPhones(bt)
	need := p.PerFile * p.Files
	if len(phones) < need {
		return apperr.Capacity("not_enough_numbers",
			fmt.Sprintf("❌ Tidak cukup nomor!\n\nTersedia: %d · Dibutuhkan: %d", len(phones), need))
	}
	batches := vcf.SplitBatches(phones, p.PerFile, p.Files)
	files := make([]outFile, len(batches))
	next, total := 1, 0
	for i, part := range batches {
		name, _ := fileName(p.Base+strconv.Itoa(p.Start+i), ".vcf")
		files[i] = outFile{Name: name, Data: vcf.Dump(vcf.FromPhones(part, p.Contact, vcf.Numbering{Start: next}))}
		next += len(part)
		total += len(part)
	}
	sent, err := b.deliver(ev, files)
	if err != nil {
		return err
	}
	b.complete(ev, featTxtVcfV2, token)
	end := p.Start + sent - 1
	return b.say(ev, strings.Join([]string{
		fmt.Sprintf("✅ *V2 (%s) Selesai*", mode),
		hr,
		fmt.Sprintf("📁 *File berhasil:* %d", sent),
		fmt.Sprintf("👤 *Nama kontak:* %s", p.Contact),
		fmt.Sprintf("📞 *Total kontak:* %d", total),
		fmt.Sprintf("📝 *Range nama file:* %s%d.vcf … %s%d.vcf", p.Base, p.Start, p.Base, end),
		"▫️ Penomoran *nama kontak* global berurutan",
		hr,
		footerStart,
	}, "\n"), nil)
}
