package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/upload"
)

const (
	cbCount   = "count_files"
	featCount = "count"
)

func (b *Bot) registerCount() {
	b.on(cbCount, true, b.startCount)
	b.sessions.Handle(featCount, func(in Event, _ state.Session) error {
		return b.submit(in, featCount)
	})
}

// countItems counts lines of a TXT and cards of a VCF.
func countItems(name, content string) int {
	if ext(name) == ".vcf" {
		return countVcf(name, content)
	}
	return countLines(name, content)
}

func (b *Bot) startCount(ev Event) error {
	rules := upload.Rules{
		Feature: featCount,
		Accept:  []string{".txt", ".vcf"},
		Unit:    "data",
		Measure: countItems,
		Reentry: true,
		OnFinal: func(ctx context.Context, bt upload.Batch) error {
			if _, ok := b.agg.Take(bt.Token); !ok {
				return nil
			}
			_, err := b.msg.Send(ctx, bt.Key.ChatID, countSummary(bt.Files), nil)
			return err
		},
	}
	return b.startUpload(ev, rules, "🔢 *COUNT VCF/TXT*\n"+hr+"\n"+
		"📤 Upload file *.txt* atau *.vcf*.\nRingkasan dikirim setelah upload selesai.")
}

func countSummary(files []upload.File) string {
	var txt, vcf int
	lines := []string{"📊 *RINGKASAN COUNT*", hr}
	for _, f := range files {
		unit := "nomor"
		if ext(f.Name) == ".vcf" {
			unit = "kontak"
			vcf += f.Count
		} else {
			txt += f.Count
		}
		lines = append(lines, fmt.Sprintf("• `%s` — %d %s", format.Code(f.Name), f.Count, unit))
	}
	lines = append(lines,
		hr,
		fmt.Sprintf("TXT total: *%d* nomor", txt),
		fmt.Sprintf("VCF total: *%d* kontak", vcf),
		fmt.Sprintf("📊 TOTAL semua: *%d*", txt+vcf),
		hr,
		footerStart,
	)
	return strings.Join(lines, "\n")
}
