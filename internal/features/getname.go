package features

import (
	"context"

	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/upload"
)

const (
	cbGetName   = "get_name_file"
	featGetName = "get_name"
)

func (b *Bot) registerGetName() {
	b.on(cbGetName, true, b.startGetName)
	b.sessions.Handle(featGetName, func(in Event, _ state.Session) error {
		return b.submit(in, featGetName)
	})
}

func (b *Bot) startGetName(ev Event) error {
	user := ev.UserID
	rules := upload.Rules{
		Feature:  featGetName,
		Title:    "📤 *Ringkasan Nama File*",
		NameOnly: true,
		OnFinal: func(ctx context.Context, bt upload.Batch) error {
			if _, ok := b.agg.Take(bt.Token); !ok {
				return nil
			}
			b.sessions.ClearIf(user, featGetName)
			names := make([]string, len(bt.Files))
			for i, f := range bt.Files {
				names[i] = stem(f.Name)
			}
			for i, block := range codeBlocks(names, textLimit) {
				text := block
				if i == 0 {
					text = "📄 *Nama File:*\n" + block
				}
				if _, err := b.msg.Send(ctx, bt.Key.ChatID, text, nil); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return b.startUpload(ev, rules, "📄 *GET NAME FILE*\n"+hr+"\n"+
		"📤 Upload file apa saja.\nBot mengirim daftar nama file tanpa ekstensi.")
}

// textLimit keeps messages under Telegram's 4096 character cap.
const textLimit = 4000
