package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbMergeTxt = "merge_txt"
	cbMergeVcf = "merge_vcf"

	featMergeTxt = "merge_txt"
	featMergeVcf = "merge_vcf"
)

// mergeName waits for the name of the merged file.
type mergeName struct{ token string }

func (mergeName) StepName() string { return "await_filename" }

type mergeKind struct {
	feature string
	ext     string
	unit    string
	measure func(name, content string) int
}

var (
	mergeTxt = mergeKind{feature: featMergeTxt, ext: ".txt", unit: "nomor", measure: countLines}
	mergeVcf = mergeKind{feature: featMergeVcf, ext: ".vcf", unit: "kontak", measure: countVcf}
)

func (b *Bot) registerMerge() {
	for _, k := range []mergeKind{mergeTxt, mergeVcf} {
		b.on(k.feature, true, func(ev Event) error { return b.startMerge(ev, k) })
		b.sessions.Handle(k.feature, func(in Event, s state.Session) error {
			return b.onMerge(in, s, k)
		})
	}
}

func (b *Bot) startMerge(ev Event, k mergeKind) error {
	label := strings.ToUpper(strings.TrimPrefix(k.ext, "."))
	user := ev.UserID
	rules := upload.Rules{
		Feature: k.feature,
		Accept:  []string{k.ext},
		Unit:    k.unit,
		Measure: k.measure,
		OnFinal: func(ctx context.Context, bt upload.Batch) error {
			if !b.advance(user, k.feature, mergeName{token: bt.Token}) {
				return nil
			}
			_, err := b.msg.Send(ctx, bt.Key.ChatID,
				fmt.Sprintf("📝 *Ketik nama file* (%s) di bawah ini.", k.ext), nil)
			return err
		},
	}
	return b.startUpload(ev, rules, fmt.Sprintf("🔗 *MERGE %s*\n%s\n📤 Upload beberapa file *%s*.\n"+
		"Bot menggabungkan semuanya menjadi satu file setelah upload selesai.", label, hr, k.ext))
}

func (b *Bot) onMerge(in Event, s state.Session, k mergeKind) error {
	if in.Doc != nil {
		return b.submit(in, k.feature)
	}
	step, ok := s.Step.(mergeName)
	if !ok {
		return b.submit(in, k.feature)
	}
	name, err := fileName(in.Text, k.ext)
	if err != nil {
		return err
	}
	bt, err := b.batch(step.token)
	if err != nil {
		return err
	}

	var (
		content string
		count   int
	)
	if k.ext == ".txt" {
		lines := vcf.MergeTxt(bt.Contents())
		content, count = vcf.Text(lines), len(lines)
	} else {
		contacts := vcf.MergeVcf(bt.Contents())
		content, count = vcf.Dump(vcf.ContactBlocks(contacts)), len(contacts)
	}
	if count == 0 {
		b.complete(in, k.feature, step.token)
		return b.say(in, "⚠️ Tidak ada data yang bisa digabung.", nil)
	}
	if _, err := b.deliver(in, []outFile{{Name: name, Data: content}}); err != nil {
		return err
	}
	b.complete(in, k.feature, step.token)
	return b.say(in, strings.Join([]string{
		"✅ *MERGE selesai!*",
		hr,
		fmt.Sprintf("📁 *File digabung:* %d", len(bt.Files)),
		fmt.Sprintf("🧾 *Total:* %d %s unik", count, k.unit),
		fmt.Sprintf("📝 *Nama file:* `%s`", format.Code(name)),
		hr,
		footerStart,
	}, "\n"), nil)
}
