package features

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/format"
	"github.com/m3rciful/vcfbot/core/telegram/state"
	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/vcf"
)

// awaitFiles is the intake step shared by every upload feature.
type awaitFiles struct{}

func (awaitFiles) StepName() string { return "await_files" }

func (b *Bot) key(ev Event, feature string) upload.Key {
	return upload.Key{ChatID: ev.ChatID, Feature: feature}
}

// startUpload drops whatever the user was doing, opens a batch for the
// feature and shows the upload instructions.
func (b *Bot) startUpload(ev Event, rules upload.Rules, intro string) error {
	b.reset(ev)
	if rules.MaxBytes == 0 {
		rules.MaxBytes = b.cfg.MaxFileBytes
	}
	if rules.MaxChars == 0 && !rules.NameOnly {
		rules.MaxChars = b.cfg.MaxContentChars
	}
	b.agg.Start(ev.Ctx, b.key(ev, rules.Feature), rules)
	b.sessions.Set(ev.UserID, rules.Feature, awaitFiles{})
	return b.show(ev, intro, nil)
}

// submit downloads the document of ev into the batch of feature.
func (b *Bot) submit(ev Event, feature string) error {
	if ev.Doc == nil {
		return apperr.Validation("need_document", "📎 Kirim file-nya dulu. Ketik /done bila semua file sudah terkirim.")
	}
	k := b.key(ev, feature)
	if err := b.agg.Precheck(k, ev.Doc.Name, ev.Doc.Size); err != nil {
		return err
	}
	data, err := b.dl.Download(ev.Ctx, ev.Doc.FileID, b.cfg.MaxFileBytes)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return err
		}
		_ = b.say(ev, fmt.Sprintf("❌ Gagal mengunduh `%s`.", format.Code(ev.Doc.Name)), nil)
		return apperr.Transport("download", err)
	}
	_, err = b.agg.Submit(ev.Ctx, k, ev.Doc.Name, data)
	return err
}

// advance moves the user to step once a batch is final. It is a no-op when
// the user has left the feature meanwhile.
func (b *Bot) advance(userID int64, feature string, step state.Step) bool {
	return b.sessions.Advance(userID, feature, step)
}

// batch returns the finalized batch behind a token without consuming it.
func (b *Bot) batch(token string) (upload.Batch, error) {
	bt, ok := b.agg.Peek(token)
	if !ok {
		return upload.Batch{}, apperr.StateMismatch(msgSessionGone)
	}
	return bt, nil
}

// finish ends the conversation of a feature after its output went out.
func (b *Bot) finish(ev Event, feature string) {
	b.sessions.ClearIf(ev.UserID, feature)
}

// complete drops the batch behind token and ends the conversation. It runs
// only after delivery succeeded; until then the batch stays peekable and the
// last step can be repeated.
func (b *Bot) complete(ev Event, feature, token string) {
	b.agg.Take(token)
	b.finish(ev, feature)
}

type outFile struct {
	Name    string
	Data    string
	Caption string
}

const msgSendFailed = "❌ Gagal mengirim file. Ulangi langkah terakhir untuk mencoba lagi."

// deliver sends files in order, pausing between them. It stops at the
// first failure and reports how many went out.
func (b *Bot) deliver(ev Event, files []outFile) (int, error) {
	sent := 0
	for i, f := range files {
		if f.Data == "" {
			continue
		}
		if i > 0 && sent > 0 {
			if err := b.wait(ev.Ctx, b.cfg.SendDelay()); err != nil {
				return sent, apperr.Transport("send_delay", err)
			}
		}
		if err := b.msg.SendFile(ev.Ctx, ev.ChatID, f.Name, []byte(f.Data), f.Caption); err != nil {
			logger.Warn(ev.Ctx, logger.CompConvert, "convert.send_failed",
				slog.String("file", logger.SanitizeLimit(f.Name, 128)),
				slog.Int("sent", sent),
				slog.String("err", err.Error()),
			)
			_ = b.say(ev, msgSendFailed, nil)
			return sent, apperr.Transport("send_file", err)
		}
		sent++
	}
	logger.Info(ev.Ctx, logger.CompConvert, "convert.delivered",
		slog.Int("files", sent),
	)
	return sent, nil
}

// convertAll runs fn over every file of a batch on a few goroutines and
// keeps the upload order in the result.
func convertAll[T any](ctx context.Context, files []upload.File, fn func(upload.File) T) []T {
	out := make([]T, len(files))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, f := range files {
		eg.Go(func() error {
			out[i] = fn(f)
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

var badFileChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

// fileName turns user input into a safe file name ending in ext.
func fileName(input, ext string) (string, error) {
	name := strings.TrimSpace(badFileChars.Replace(input))
	if strings.EqualFold(filepath.Ext(name), ext) {
		name = strings.TrimSpace(name[:len(name)-len(ext)])
	}
	if name == "" || strings.Trim(name, ".") == "" {
		return "", apperr.Validation("bad_filename", "❌ Nama file tidak valid. Ketik nama lain.")
	}
	return name + ext, nil
}

// baseName is typed input without surrounding blanks or a trailing ext.
func baseName(text, ext string) string {
	name := strings.TrimSpace(text)
	if strings.EqualFold(filepath.Ext(name), ext) {
		name = name[:len(name)-len(ext)]
	}
	return strings.TrimSpace(name)
}

// stem is a file name without its extension.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// positive parses a number greater than zero.
func positive(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return 0, apperr.Validation("bad_number", "❌ Masukkan angka valid (> 0).")
	}
	return n, nil
}

// contactName cleans a display name typed by the user.
func contactName(text string) (string, error) {
	name := vcf.CleanName(text)
	if name == "" {
		return "", apperr.Validation("bad_name", "❌ Nama kontak tidak valid!")
	}
	return name, nil
}

// uniq keeps the first occurrence of every value.
func uniq(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// countVcf counts the cards of a vCard text.
func countVcf(_, content string) int { return len(vcf.ParseBlocks(content)) }

// countLines counts the non-blank lines of a text.
func countLines(_, content string) int { return vcf.CountNonEmptyLines(content) }

// countPhones counts the distinct usable numbers of a phone list.
func countPhones(_, content string) int { return len(vcf.NormalizeList(content)) }

// phonesOf reads the numbers of a file: TEL values for vCards, non-blank
// lines otherwise.
func phonesOf(f upload.File) []string {
	if ext(f.Name) == ".vcf" {
		return uniq(vcf.PhonesFromBlocks(vcf.ParseBlocks(f.Content)))
	}
	return vcf.ExtractPhones(f.Content)
}

// codeBlocks wraps lines in Markdown code blocks no longer than limit
// characters each.
func codeBlocks(lines []string, limit int) []string {
	const fence = "```"
	var (
		out []string
		sb  strings.Builder
	)
	flush := func() {
		if sb.Len() == 0 {
			return
		}
		out = append(out, fence+"\n"+sb.String()+fence)
		sb.Reset()
	}
	budget := limit - 2*len(fence) - 2
	for _, l := range lines {
		l = format.Code(l)
		if sb.Len() > 0 && sb.Len()+len(l)+1 > budget {
			flush()
		}
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	flush()
	return out
}
