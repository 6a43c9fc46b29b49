package upload

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/m3rciful/vcfbot/internal/apperr"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode turns uploaded bytes into text: UTF-8 first, then windows-1252,
// then ISO-8859-1. Content with NUL bytes is treated as binary and
// rejected; decoding never panics.
func Decode(data []byte) (string, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return "", apperr.Validation("binary_content", "❌ Tidak bisa membaca file (bukan file teks).")
	}
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	for _, cm := range []*charmap.Charmap{charmap.Windows1252, charmap.ISO8859_1} {
		out, err := cm.NewDecoder().Bytes(data)
		if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), nil
	}
	return "", apperr.Validation("undecodable", "❌ Tidak bisa membaca file.")
}
