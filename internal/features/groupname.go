package features

import (
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

const (
	cbGroupName   = "create_group_name"
	featGroupName = "group_name"
)

type (
	groupBase  struct{}
	groupCount struct{ base string }
)

func (groupBase) StepName() string  { return "await_base" }
func (groupCount) StepName() string { return "await_count" }

func (b *Bot) registerGroupName() {
	b.on(cbGroupName, true, func(ev Event) error {
		b.reset(ev)
		b.sessions.Set(ev.UserID, featGroupName, groupBase{})
		return b.show(ev, "👥 *CREATE GROUP NAME*\n"+hr+"\n"+
			"Ketik *nama dasar* (wajib diakhiri angka).\n"+
			"Contoh: `Squad🔥1`, `grup-10`, `Batch_001`", nil)
	})
	b.sessions.Handle(featGroupName, b.onGroupName)
}

func (b *Bot) onGroupName(in Event, s state.Session) error {
	if in.Doc != nil {
		return apperr.Validation("text_only", "📝 Fitur ini menerima *teks*, bukan file.")
	}
	switch step := s.Step.(type) {
	case groupBase:
		base := strings.TrimSpace(in.Text)
		if vcf.SequenceNames(base, 1) == nil {
			return apperr.Validation("base_without_number",
				"❌ Nama dasar *wajib diakhiri angka*.\ncontoh: `Team🔥1` atau `group-99`")
		}
		b.advance(in.UserID, featGroupName, groupCount{base: base})
		return b.say(in, "🧮 *Jumlah group?* Ketik angka > 0", nil)
	case groupCount:
		n, err := positive(in.Text)
		if err != nil {
			return err
		}
		if limit := b.cfg.MaxPhones; limit > 0 && n > limit {
			return apperr.Capacity("too_many_groups", fmt.Sprintf("❌ Maksimal %d nama sekaligus.", limit))
		}
		names := vcf.SequenceNames(step.base, n)
		b.finish(in, featGroupName)
		for i, block := range codeBlocks(names, textLimit) {
			text := block
			if i == 0 {
				text = fmt.Sprintf("✅ *Selesai!* %d nama dibuat.\n%s\n%s", n, hr, block)
			}
			if err := b.say(in, text, nil); err != nil {
				return err
			}
		}
		return nil
	}
	return apperrSessionGone()
}
