package upload_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/internal/apperr"
	"github.com/m3rciful/vcfbot/internal/upload"
	"github.com/m3rciful/vcfbot/internal/upload/uploadtest"
)

const idle = 3 * time.Second

type harness struct {
	agg   *upload.Aggregator
	sched *uploadtest.Scheduler
	msg   *uploadtest.Messenger
	final []upload.Batch
	mu    sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sched: uploadtest.NewScheduler(), msg: &uploadtest.Messenger{}}
	n := 0
	h.agg = upload.New(upload.Options{
		Messenger: h.msg,
		Clock:     h.sched,
		Scheduler: h.sched,
		Idle:      idle,
		NewToken: func() string {
			n++
			return fmt.Sprintf("tok-%d", n)
		},
	})
	return h
}

func (h *harness) rules(feature string) upload.Rules {
	return upload.Rules{
		Feature: feature,
		Accept:  []string{".txt", ".vcf"},
		Unit:    "kontak",
		Measure: func(_, content string) int { return strings.Count(content, "BEGIN:VCARD") },
		OnFinal: func(ctx context.Context, b upload.Batch) error {
			h.mu.Lock()
			h.final = append(h.final, b)
			h.mu.Unlock()
			_, err := h.msg.Send(ctx, b.Key.ChatID, "📝 *Ketik nama file* (.vcf) di bawah ini.", nil)
			return err
		},
	}
}

func (h *harness) finals() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.final)
}

func cards(n int) []byte {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "BEGIN:VCARD\nVERSION:3.0\nFN:K %d\nTEL;TYPE=CELL:+6281%d\nEND:VCARD\n", i, i)
	}
	return []byte(sb.String())
}

func TestBatchFinalizesAfterIdleWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 10, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))

	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(2)); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	h.sched.Advance(time.Second)
	if _, err := h.agg.Submit(ctx, key, "b.vcf", cards(3)); err != nil {
		t.Fatalf("submit b: %v", err)
	}

	h.sched.Advance(2 * time.Second)
	if got := h.agg.Phase(key); got != upload.PhaseIntake {
		t.Fatalf("phase 2s after last upload = %s, want intake", got)
	}
	h.sched.Advance(time.Second)
	if got := h.agg.Phase(key); got != upload.PhaseAwaitingAction {
		t.Fatalf("phase after idle = %s, want awaiting_action", got)
	}
	if h.finals() != 1 {
		t.Fatalf("OnFinal ran %d times, want 1", h.finals())
	}

	timers := h.sched.Timers()
	if len(timers) != 2 {
		t.Fatalf("timers = %d, want 2", len(timers))
	}
	if !timers[0].Stopped() || timers[0].Fired() {
		t.Fatal("first timer should be stopped by the second upload and never fire")
	}

	b := h.final[0]
	if len(b.Files) != 2 || b.Files[0].Name != "a.vcf" || b.Files[1].Name != "b.vcf" {
		t.Fatalf("files out of order: %+v", b.Files)
	}
	if b.Total() != 5 {
		t.Fatalf("total = %d, want 5", b.Total())
	}
	preview := h.msg.Current(b.Preview)
	for _, want := range []string{"1. `a.vcf` — 🧾 2 kontak", "2. `b.vcf` — 🧾 3 kontak", "✅ *Selesai membaca semua file.*", "🧮 *Total:* 2 file · 5 kontak"} {
		if !strings.Contains(preview, want) {
			t.Fatalf("final preview missing %q:\n%s", want, preview)
		}
	}
	last, _ := h.msg.LastSent()
	if !strings.Contains(last.Text, "Ketik nama file") {
		t.Fatalf("prompt should follow the summary, got %q", last.Text)
	}
	if sent := h.msg.SentContaining("Ringkasan Upload"); len(sent) != 1 {
		t.Fatalf("summary messages = %d, want exactly one live message", len(sent))
	}
}

func TestFinalizeWaitsForFullGapAfterLastUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 11, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))

	for i := 0; i < 6; i++ {
		if _, err := h.agg.Submit(ctx, key, fmt.Sprintf("f%d.vcf", i), cards(1)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		h.sched.Advance(idle - time.Millisecond)
		if h.finals() != 0 {
			t.Fatalf("finalized during a burst after upload %d", i)
		}
	}
	lastUpload := h.sched.Now().Add(-(idle - time.Millisecond))
	h.sched.Advance(time.Millisecond)
	if h.finals() != 1 {
		t.Fatalf("finals = %d, want 1", h.finals())
	}
	if got := h.sched.Now().Sub(lastUpload); got < idle {
		t.Fatalf("finalized %v after the last upload, want >= %v", got, idle)
	}
	if h.sched.Pending() != 0 {
		t.Fatalf("pending timers after finalize = %d", h.sched.Pending())
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 12, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}

	if err := h.agg.Flush(ctx, key); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	_, edits, _ := h.msg.Counts()
	if err := h.agg.Flush(ctx, key); !errors.Is(err, apperr.ErrRaceNoop) {
		t.Fatalf("second flush = %v, want ErrRaceNoop", err)
	}
	h.sched.Advance(idle)
	if h.finals() != 1 {
		t.Fatalf("OnFinal ran %d times, want 1", h.finals())
	}
	if _, after, _ := h.msg.Counts(); after != edits {
		t.Fatalf("final summary rendered again: edits %d -> %d", edits, after)
	}
}

func TestFlushWithoutFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 13, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))

	err := h.agg.Flush(ctx, key)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("flush of empty batch = %v, want validation", err)
	}
	if err := h.agg.Flush(ctx, upload.Key{ChatID: 99, Feature: "x"}); apperr.KindOf(err) != apperr.KindStateMismatch {
		t.Fatalf("flush of unknown key = %v, want state mismatch", err)
	}
}

func TestRejectedExtensionLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 14, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))

	_, err := h.agg.Submit(ctx, key, "photo.jpg", []byte("not really"))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("submit .jpg = %v, want validation", err)
	}
	if !strings.Contains(apperr.Message(err), ".txt atau .vcf") {
		t.Fatalf("message = %q", apperr.Message(err))
	}
	if sent, edits, _ := h.msg.Counts(); sent != 0 || edits != 0 {
		t.Fatalf("rejected upload produced messages: sent=%d edits=%d", sent, edits)
	}
	if h.sched.Pending() != 0 {
		t.Fatal("rejected upload armed a timer")
	}
	if err := h.agg.Precheck(key, "IMG.JPG", 10); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("precheck = %v", err)
	}
}

func TestCapacityLimits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 15, Feature: "txttovcf"}
	rules := h.rules("txttovcf")
	rules.MaxFiles = 2
	rules.MaxBytes = 1024
	h.agg.Start(ctx, key, rules)

	for _, name := range []string{"a.vcf", "b.vcf"} {
		if _, err := h.agg.Submit(ctx, key, name, cards(1)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.agg.Submit(ctx, key, "c.vcf", cards(1)); apperr.KindOf(err) != apperr.KindCapacity {
		t.Fatalf("third file = %v, want capacity", err)
	}
	if err := h.agg.Precheck(key, "d.vcf", 10); apperr.KindOf(err) != apperr.KindCapacity {
		t.Fatalf("precheck over file limit = %v", err)
	}

	other := upload.Key{ChatID: 15, Feature: "other"}
	h.agg.Start(ctx, other, rules)
	if err := h.agg.Precheck(other, "big.vcf", 4096); apperr.KindOf(err) != apperr.KindCapacity {
		t.Fatalf("precheck over size = %v", err)
	}
}

func TestLateUploadAfterFinalizeIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 16, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(idle)

	if _, err := h.agg.Submit(ctx, key, "late.vcf", cards(1)); !errors.Is(err, apperr.ErrRaceNoop) {
		t.Fatalf("late submit = %v, want ErrRaceNoop", err)
	}
	b, ok := h.agg.Peek(h.final[0].Token)
	if !ok || len(b.Files) != 1 {
		t.Fatalf("frozen batch changed: %+v", b)
	}
}

func TestReentryOpensFreshBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 17, Feature: "count"}
	rules := h.rules("count")
	rules.Reentry = true
	first := h.agg.Start(ctx, key, rules)
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(idle)
	if _, ok := h.agg.Take(first); !ok {
		t.Fatal("take after finalize failed")
	}

	rcpt, err := h.agg.Submit(ctx, key, "b.vcf", cards(4))
	if err != nil {
		t.Fatalf("re-entry submit: %v", err)
	}
	if !rcpt.Restarted || rcpt.Token == first || rcpt.Files != 1 {
		t.Fatalf("receipt = %+v, want a fresh single-file batch", rcpt)
	}
	h.sched.Advance(idle)
	if h.finals() != 2 || h.final[1].Total() != 4 {
		t.Fatalf("second batch not finalized on its own: %d finals", h.finals())
	}
	if h.final[0].Preview == h.final[1].Preview {
		t.Fatal("fresh batch should get its own summary message")
	}
}

func TestReentryRetiresUnclaimedFinal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 19, Feature: "count"}
	rules := h.rules("count")
	rules.Reentry = true
	first := h.agg.Start(ctx, key, rules)
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(idle)

	if _, err := h.agg.Submit(ctx, key, "foto.jpg", []byte("x")); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if _, ok := h.agg.Peek(first); !ok {
		t.Fatal("a rejected file must not retire the finalized batch")
	}

	rcpt, err := h.agg.Submit(ctx, key, "b.vcf", cards(2))
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Restarted || rcpt.Token == first {
		t.Fatalf("receipt = %+v", rcpt)
	}
	if _, ok := h.agg.Peek(first); ok {
		t.Fatal("old token still resolves after re-entry")
	}
	if _, ok := h.agg.Take(first); ok {
		t.Fatal("old token still consumable after re-entry")
	}
	h.sched.Advance(idle)
	if b, ok := h.agg.Peek(rcpt.Token); !ok || b.Total() != 2 {
		t.Fatalf("new batch = %+v, %v", b, ok)
	}
}

func TestTakeConsumesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 18, Feature: "mergevcf"}
	token := h.agg.Start(ctx, key, h.rules("mergevcf"))
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.agg.Take(token); ok {
		t.Fatal("take before finalize must fail")
	}
	if err := h.agg.Flush(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.agg.Take(token); !ok {
		t.Fatal("first take failed")
	}
	if _, ok := h.agg.Take(token); ok {
		t.Fatal("second take succeeded")
	}
	if got := h.agg.Phase(key); got != upload.PhaseIdle {
		t.Fatalf("phase after take = %s, want idle", got)
	}
	if _, err := h.agg.Submit(ctx, key, "b.vcf", cards(1)); apperr.KindOf(err) != apperr.KindStateMismatch {
		t.Fatalf("submit after completion = %v, want state mismatch", err)
	}
}

func TestRestartCancelsPendingFinalize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 19, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	h.agg.Start(ctx, key, h.rules("mergevcf"))
	h.sched.Advance(2 * idle)
	if h.finals() != 0 {
		t.Fatal("replaced batch was finalized")
	}
	if got := h.agg.Phase(key); got != upload.PhaseIntake {
		t.Fatalf("phase = %s, want intake", got)
	}
}

func TestDiscardChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := upload.Key{ChatID: 20, Feature: "mergevcf"}
	b := upload.Key{ChatID: 20, Feature: "split"}
	c := upload.Key{ChatID: 21, Feature: "split"}
	for _, k := range []upload.Key{a, b, c} {
		h.agg.Start(ctx, k, h.rules(k.Feature))
		if _, err := h.agg.Submit(ctx, k, "x.vcf", cards(1)); err != nil {
			t.Fatal(err)
		}
	}
	if n := h.agg.DiscardChat(20); n != 2 {
		t.Fatalf("discarded %d, want 2", n)
	}
	h.sched.Advance(idle)
	if h.finals() != 1 || h.final[0].Key != c {
		t.Fatalf("only the other chat should finalize, got %d finals", h.finals())
	}
}

func TestNotModifiedEditIsSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 22, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	h.msg.EditErr = func(upload.Handle) error { return upload.ErrNotModified }
	if _, err := h.agg.Submit(ctx, key, "b.vcf", cards(1)); err != nil {
		t.Fatalf("not modified should be swallowed: %v", err)
	}
	if sent, _, _ := h.msg.Counts(); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
}

func TestEditFailureFallsBackToSend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 23, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	h.msg.EditErr = func(upload.Handle) error { return uploadtest.ErrBroken }
	if _, err := h.agg.Submit(ctx, key, "b.vcf", cards(1)); err != nil {
		t.Fatalf("fallback send should succeed: %v", err)
	}
	if sent, _, _ := h.msg.Counts(); sent != 2 {
		t.Fatalf("sent = %d, want a fresh summary", sent)
	}

	h.msg.SendErr = func(string) error { return uploadtest.ErrBroken }
	rcpt, err := h.agg.Submit(ctx, key, "c.vcf", cards(1))
	if apperr.KindOf(err) != apperr.KindTransport {
		t.Fatalf("double failure = %v, want transport", err)
	}
	if rcpt.Files != 3 {
		t.Fatalf("file should still be collected, receipt %+v", rcpt)
	}
}

func TestDuplicateNamesAreSuffixed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 24, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))
	var names []string
	for i := 0; i < 3; i++ {
		rcpt, err := h.agg.Submit(ctx, key, "data.vcf", cards(1))
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, rcpt.File.Name)
	}
	want := []string{"data.vcf", "data_1.vcf", "data_2.vcf"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestReplaceKeepsLatestUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 25, Feature: "split"}
	rules := h.rules("split")
	rules.Replace = true
	rules.MaxFiles = 1
	h.agg.Start(ctx, key, rules)
	for _, n := range []int{1, 2} {
		if _, err := h.agg.Submit(ctx, key, "in.vcf", cards(n)); err != nil {
			t.Fatal(err)
		}
	}
	h.sched.Advance(idle)
	if len(h.final[0].Files) != 1 || h.final[0].Total() != 2 {
		t.Fatalf("batch = %+v, want only the latest file", h.final[0].Files)
	}
}

func TestActionsAttachToFinalSummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 26, Feature: "split"}
	rules := h.rules("split")
	var gotToken string
	rules.Actions = func(token string) *tele.ReplyMarkup {
		gotToken = token
		m := &tele.ReplyMarkup{}
		m.Inline(m.Row(m.Data("✅ Selesai", "split_done", token)))
		return m
	}
	token := h.agg.Start(ctx, key, rules)
	if _, err := h.agg.Submit(ctx, key, "a.vcf", cards(1)); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(idle)
	if gotToken != token {
		t.Fatalf("actions built for %q, want %q", gotToken, token)
	}
	if len(h.msg.Edits) == 0 || h.msg.Edits[len(h.msg.Edits)-1].Markup == nil {
		t.Fatal("final summary should carry the action buttons")
	}
}

func TestConcurrentUploadsAreAllCollected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := upload.Key{ChatID: 27, Feature: "mergevcf"}
	h.agg.Start(ctx, key, h.rules("mergevcf"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.agg.Submit(ctx, key, "same.vcf", cards(1)); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()
	h.sched.Advance(idle)

	if h.finals() != 1 {
		t.Fatalf("finals = %d, want 1", h.finals())
	}
	seen := map[string]bool{}
	for _, f := range h.final[0].Files {
		if seen[f.Name] {
			t.Fatalf("duplicate name %s", f.Name)
		}
		seen[f.Name] = true
	}
	if len(seen) != 20 || h.final[0].Total() != 20 {
		t.Fatalf("collected %d files / %d contacts, want 20", len(seen), h.final[0].Total())
	}
}
