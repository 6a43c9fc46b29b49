package upload

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/m3rciful/vcfbot/internal/apperr"
)

func TestRenderPreviewTail(t *testing.T) {
	var files []File
	for i := 1; i <= 20; i++ {
		files = append(files, File{Name: fmt.Sprintf("f%d.txt", i), Count: 1})
	}
	out := renderPreview("", files, "nomor", 15, false)

	if strings.Contains(out, "`f5.txt`") {
		t.Fatalf("files before the tail should be hidden:\n%s", out)
	}
	for _, want := range []string{"6. `f6.txt` — 🧾 1 nomor", "20. `f20.txt`", statusActive, "🧮 *Total:* 20 file · 20 nomor"} {
		if !strings.Contains(out, want) {
			t.Fatalf("preview missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPreviewWithoutUnit(t *testing.T) {
	out := renderPreview("🧾 *Daftar Nama File*", []File{{Name: "a`b.vcf"}}, "", 15, true)
	if strings.Contains(out, "🧾 0") || strings.Contains(out, "·") {
		t.Fatalf("counts should be hidden:\n%s", out)
	}
	if !strings.Contains(out, "1. `a'b.vcf`") || !strings.Contains(out, statusFinal) {
		t.Fatalf("unexpected preview:\n%s", out)
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode([]byte("\xEF\xBB\xBF0812\n0813"))
	if err != nil || got != "0812\n0813" {
		t.Fatalf("utf8 with BOM = %q, %v", got, err)
	}

	got, err = Decode([]byte{'c', 'a', 'f', 0xE9})
	if err != nil || got != "café" {
		t.Fatalf("windows-1252 = %q, %v", got, err)
	}

	_, err = Decode([]byte{0x89, 'P', 'N', 'G', 0x00, 0x01})
	if !errors.Is(err, &apperr.Error{Kind: apperr.KindValidation}) {
		t.Fatalf("binary = %v, want validation", err)
	}
}
