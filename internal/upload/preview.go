package upload

import (
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/format"
)

const (
	defaultTitle = "📤 *Ringkasan Upload*"
	rule         = "━━━━━━━━━━━━━━━━━━━━━━━"
	statusActive = "🔄 *Tunggu sebentar, bot sedang membaca file…*"
	statusFinal  = "✅ *Selesai membaca semua file.*"
)

// renderPreview draws the running summary: the last tail files numbered by
// their position in the whole batch, the status line and the totals.
func renderPreview(title string, files []File, unit string, tail int, final bool) string {
	if title == "" {
		title = defaultTitle
	}
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteByte('\n')
	sb.WriteString(rule)
	sb.WriteString("\n📁 *Daftar File:*\n")

	shown := files
	if tail > 0 && len(files) > tail {
		shown = files[len(files)-tail:]
	}
	first := len(files) - len(shown) + 1
	for i, f := range shown {
		fmt.Fprintf(&sb, "%d. `%s`", first+i, format.Code(f.Name))
		if unit != "" {
			fmt.Fprintf(&sb, " — 🧾 %d %s", f.Count, unit)
		}
		sb.WriteByte('\n')
	}

	if final {
		sb.WriteString(statusFinal)
	} else {
		sb.WriteString(statusActive)
	}
	sb.WriteString("\n\n")
	sb.WriteString(rule)
	fmt.Fprintf(&sb, "\n🧮 *Total:* %d file", len(files))
	if unit != "" {
		fmt.Fprintf(&sb, " · %d %s", totalCount(files), unit)
	}
	return sb.String()
}

func totalCount(files []File) int {
	n := 0
	for _, f := range files {
		n += f.Count
	}
	return n
}
