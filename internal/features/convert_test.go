package features

import (
	"fmt"
	"strings"
	"testing"

	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload/uploadtest"
)

// failFiles makes the next n SendFile calls fail.
func (e *env) failFiles(n int) {
	e.msg.FileErr = func(string) error {
		if n == 0 {
			return nil
		}
		n--
		return uploadtest.ErrBroken
	}
}

func TestMergeTxtDropsRepeatedNumbers(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbMergeTxt, ""))
	e.mustOK(e.upload("a.txt", []byte("6281\n6282\n")))
	e.mustOK(e.upload("b.txt", []byte("6282\n6283\n")))
	e.sched.Advance(idle)

	e.mustOK(e.say("out"))
	files := e.files()
	if len(files) != 1 || files[0].Name != "out.txt" {
		t.Fatalf("files = %+v", files)
	}
	if got := string(files[0].Data); got != "6281\n6282\n6283\n" {
		t.Fatalf("merged = %q", got)
	}
	if !strings.Contains(e.lastText(), "3 nomor unik") {
		t.Fatalf("summary = %q", e.lastText())
	}
}

func TestFailedDeliveryKeepsConversation(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbMergeVcf, ""))
	e.mustOK(e.upload("a.vcf", cards("811", 2)))
	e.sched.Advance(idle)

	e.failFiles(1)
	if err := e.say("out"); apperr.KindOf(err) != apperr.KindTransport {
		t.Fatalf("err = %v, want transport", err)
	}
	if !e.bot.InProgress(e.user) {
		t.Fatal("a failed send must keep the conversation")
	}
	if len(e.msg.SentContaining(msgSendFailed)) != 1 {
		t.Fatal("user was not told the send failed")
	}
	if len(e.files()) != 0 {
		t.Fatalf("files = %+v", e.files())
	}

	e.mustOK(e.say("out"))
	files := e.files()
	if len(files) != 1 || files[0].Name != "out.vcf" {
		t.Fatalf("files after retry = %+v", files)
	}
	if e.bot.InProgress(e.user) {
		t.Fatal("conversation should be over after delivery")
	}
	if err := e.say("out"); apperr.KindOf(err) != apperr.KindStateMismatch {
		t.Fatalf("err = %v, want state mismatch once delivered", err)
	}
}

func TestFailedSplitCanBeRetriedFromButton(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbSplit, ""))
	e.mustOK(e.upload("nomor.txt", numbers("811", 6)))
	e.sched.Advance(idle)
	e.mustOK(e.say("2"))

	e.failFiles(1)
	if err := e.click(cbSplitDone, "tok-1|2"); apperr.KindOf(err) != apperr.KindTransport {
		t.Fatalf("err = %v, want transport", err)
	}
	e.mustOK(e.click(cbSplitDone, "tok-1|2"))
	if files := e.files(); len(files) != 2 || files[0].Name != "nomor_1.txt" {
		t.Fatalf("files = %+v", files)
	}
}

func TestEditNameRenumbersEachFile(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbEditName, ""))
	e.mustOK(e.upload("a.vcf", cards("811", 2)))
	e.mustOK(e.upload("b.vcf", cards("822", 1)))
	e.sched.Advance(idle)
	if len(e.msg.SentContaining("Ketik nama dasar kontak")) != 1 {
		t.Fatal("name prompt missing")
	}

	if err := e.say(" ; "); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	e.mustOK(e.say("Tim"))
	files := e.files()
	if len(files) != 2 || files[0].Name != "a.vcf" || files[1].Name != "b.vcf" {
		t.Fatalf("files = %+v", files)
	}
	first, second := string(files[0].Data), string(files[1].Data)
	if !strings.Contains(first, "FN:Tim 1\n") || !strings.Contains(first, "FN:Tim 2\n") || strings.Contains(first, "Admin") {
		t.Fatalf("first file:\n%s", first)
	}
	if !strings.Contains(second, "FN:Tim 1\n") || !strings.Contains(second, "TEL;TYPE=CELL:+62822001") {
		t.Fatalf("second file:\n%s", second)
	}
	if !strings.Contains(e.lastText(), "Total kontak:* 3") {
		t.Fatalf("summary = %q", e.lastText())
	}
	if e.bot.InProgress(e.user) {
		t.Fatal("conversation should be over")
	}
}

func TestGetNameListsStems(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbGetName, ""))
	e.mustOK(e.upload("daftar.txt", []byte("x")))
	e.mustOK(e.upload("foto.jpg", []byte{0xff, 0xd8}))
	e.sched.Advance(idle)

	got := e.msg.SentContaining("Nama File:*")
	if len(got) != 1 {
		t.Fatalf("name lists = %d, want 1", len(got))
	}
	if want := "📄 *Nama File:*\n```\ndaftar\nfoto\n```"; got[0].Text != want {
		t.Fatalf("list = %q, want %q", got[0].Text, want)
	}
	if e.bot.InProgress(e.user) {
		t.Fatal("conversation should be over")
	}
}

func TestVcfTxtSeparate(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbVcfTxt, ""))
	e.mustOK(e.upload("x.vcf", cards("811", 2)))
	e.mustOK(e.upload("y.vcf", cards("822", 1)))
	e.sched.Advance(idle)

	e.mustOK(e.click(cbVcfSeparate, "tok-1"))
	files := e.files()
	if len(files) != 2 || files[0].Name != "x.txt" || files[1].Name != "y.txt" {
		t.Fatalf("files = %+v", files)
	}
	if got := string(files[0].Data); got != "+62811001\n+62811002\n" {
		t.Fatalf("x.txt = %q", got)
	}
	if got := string(files[1].Data); got != "+62822001\n" {
		t.Fatalf("y.txt = %q", got)
	}
	summary := e.lastText()
	if !strings.Contains(summary, "File dikirim:* 2") || !strings.Contains(summary, "Total nomor:* 3") {
		t.Fatalf("summary = %q", summary)
	}
}

func TestVcfTxtMergeNamesTheFile(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbVcfTxt, ""))
	e.mustOK(e.upload("a.vcf", cards("811", 2)))
	e.mustOK(e.upload("b.vcf", []byte(card("Lain", "+62811001")+card("Baru", "+62899001"))))
	e.sched.Advance(idle)

	e.mustOK(e.click(cbVcfMerge, "tok-1"))
	if !strings.Contains(e.lastText(), "Ketik nama file TXT gabungan") {
		t.Fatalf("prompt = %q", e.lastText())
	}
	if err := e.say("..."); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	e.mustOK(e.say("semua.txt"))
	files := e.files()
	if len(files) != 1 || files[0].Name != "semua.txt" {
		t.Fatalf("files = %+v", files)
	}
	if got := string(files[0].Data); got != "+62811001\n+62811002\n+62899001\n" {
		t.Fatalf("merged = %q", got)
	}
	summary := e.lastText()
	if !strings.Contains(summary, "Total nomor:* 3") || !strings.Contains(summary, "`semua.txt`") {
		t.Fatalf("summary = %q", summary)
	}
}

// codeLines returns the lines inside the fenced blocks of texts.
func codeLines(texts []string) []string {
	var out []string
	for _, text := range texts {
		_, body, ok := strings.Cut(text, "```\n")
		if !ok {
			continue
		}
		body, _, _ = strings.Cut(body, "```")
		out = append(out, strings.Split(strings.TrimSuffix(body, "\n"), "\n")...)
	}
	return out
}

func TestToTextSplitsLongFiles(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbToText, ""))
	before, _, _ := e.msg.Counts()
	e.mustOK(e.upload("nomor.txt", numbers("81234567", 1000)))

	var texts []string
	for _, m := range e.msg.Sent[before:] {
		texts = append(texts, m.Text)
	}
	if len(texts) < 3 {
		t.Fatalf("messages = %d, want several chunks and a summary", len(texts))
	}
	if !strings.HasPrefix(texts[0], "✅ *Isi file") {
		t.Fatalf("first chunk = %.60q", texts[0])
	}
	chunks := texts[:len(texts)-1]
	for i, c := range chunks {
		if len([]rune(c)) > 4096 {
			t.Fatalf("chunk %d is %d characters", i, len([]rune(c)))
		}
		if i > 0 && !strings.HasPrefix(c, "```\n") {
			t.Fatalf("chunk %d = %.60q", i, c)
		}
	}
	lines := codeLines(chunks)
	if len(lines) != 1000 {
		t.Fatalf("lines = %d, want 1000", len(lines))
	}
	for i, l := range lines {
		if want := fmt.Sprintf("6281234567%03d", i+1); l != want {
			t.Fatalf("line %d = %q, want %q", i, l, want)
		}
	}
	if !strings.Contains(texts[len(texts)-1], "Total baris: 1000") {
		t.Fatalf("summary = %q", texts[len(texts)-1])
	}
}

func TestToTextReadsNumbersFromVcf(t *testing.T) {
	e := newEnv(t, nil)
	e.mustOK(e.click(cbToText, ""))
	e.mustOK(e.upload("list.vcf", cards("811", 2)))

	chunks := e.msg.SentContaining("Isi file")
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if got := codeLines([]string{chunks[0].Text}); len(got) != 2 || got[0] != "+62811001" || got[1] != "+62811002" {
		t.Fatalf("lines = %q", got)
	}
	if !strings.Contains(e.lastText(), "Total nomor: 2") {
		t.Fatalf("summary = %q", e.lastText())
	}
	if err := e.upload("foto.jpg", []byte{0xff}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}
