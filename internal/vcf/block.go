// Package vcf holds the pure contact conversions: vCard block scanning and
// dumping, phone normalization, numbering and batch splitting. Nothing here
// returns an error for malformed input; callers get empty results instead.
package vcf

import (
	"strings"
)

const (
	beginCard = "BEGIN:VCARD"
	endCard   = "END:VCARD"
)

// Block is one vCard as its raw lines, BEGIN and END included.
type Block []string

// Contact is the display name and first phone of a card.
type Contact struct {
	Name  string
	Phone string
}

// Lines splits text on \n, \r\n and \r.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// ParseBlocks scans text line by line. A block opens on a BEGIN:VCARD line
// and closes on END:VCARD (both case-insensitive, surrounding space ignored).
// Lines outside blocks are dropped, as is an unterminated trailing block.
func ParseBlocks(text string) []Block {
	var (
		blocks []Block
		cur    Block
	)
	for _, line := range Lines(text) {
		switch strings.ToUpper(strings.TrimSpace(line)) {
		case beginCard:
			cur = Block{line}
		case endCard:
			if cur == nil {
				continue
			}
			cur = append(cur, line)
			blocks = append(blocks, cur)
			cur = nil
		default:
			if cur != nil {
				cur = append(cur, line)
			}
		}
	}
	return blocks
}

// Dump serializes blocks separated by one blank line. A block not ending in
// END:VCARD gets one appended. The result is trimmed and ends with exactly
// one newline; no blocks yields "".
func Dump(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if len(b) == 0 {
			continue
		}
		for _, line := range b {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if strings.ToUpper(strings.TrimSpace(b[len(b)-1])) != endCard {
			sb.WriteString(endCard)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return ""
	}
	return out + "\n"
}

// NewCard builds a vCard 3.0 block.
func NewCard(name, phone string) Block {
	return Block{
		beginCard,
		"VERSION:3.0",
		"FN:" + name,
		"TEL;TYPE=CELL:" + phone,
		endCard,
	}
}

// DisplayName returns the first FN value of b.
func DisplayName(b Block) (string, bool) {
	for _, line := range b {
		if hasPrefixFold(line, "FN:") {
			return strings.TrimSpace(line[3:]), true
		}
	}
	return "", false
}

// DisplayNames collects the first FN of every block that has one.
func DisplayNames(blocks []Block) []string {
	var names []string
	for _, b := range blocks {
		if n, ok := DisplayName(b); ok {
			names = append(names, n)
		}
	}
	return names
}

// TelValues returns the value part of every TEL line, with or without parameters.
func TelValues(b Block) []string {
	var out []string
	for _, line := range b {
		if !hasPrefixFold(line, "TEL") {
			continue
		}
		if _, v, ok := strings.Cut(line, ":"); ok {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// Contacts pairs the first FN with the first TEL of each block. Blocks
// missing either are skipped.
func Contacts(blocks []Block) []Contact {
	var out []Contact
	for _, b := range blocks {
		name, ok := DisplayName(b)
		tels := TelValues(b)
		if !ok || name == "" || len(tels) == 0 || tels[0] == "" {
			continue
		}
		out = append(out, Contact{Name: name, Phone: tels[0]})
	}
	return out
}

// ContactBlocks turns contacts back into cards.
func ContactBlocks(contacts []Contact) []Block {
	out := make([]Block, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, NewCard(c.Name, c.Phone))
	}
	return out
}

// RenameBlocks sets the display name of the i-th block (1-based) to
// "base i". The first FN line is replaced; blocks without one get it
// inserted after VERSION.
func RenameBlocks(blocks []Block, base string) []Block {
	out := make([]Block, 0, len(blocks))
	for i, b := range blocks {
		fn := "FN:" + base + " " + itoa(i+1)
		nb := make(Block, 0, len(b)+1)
		replaced := false
		for _, line := range b {
			if !replaced && hasPrefixFold(line, "FN:") {
				nb = append(nb, fn)
				replaced = true
				continue
			}
			nb = append(nb, line)
		}
		if !replaced {
			nb = insertAfterVersion(nb, fn)
		}
		out = append(out, nb)
	}
	return out
}

func insertAfterVersion(b Block, line string) Block {
	for i, l := range b {
		if hasPrefixFold(l, "VERSION:") {
			out := make(Block, 0, len(b)+1)
			out = append(out, b[:i+1]...)
			out = append(out, line)
			return append(out, b[i+1:]...)
		}
	}
	return b
}

// RemoveByPhones drops every block with a TEL whose digits equal the digits
// of one of targets. Formatting differences are ignored.
func RemoveByPhones(blocks []Block, targets []string) (kept []Block, removed int) {
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if d := Digits(t); d != "" {
			want[d] = struct{}{}
		}
	}
	for _, b := range blocks {
		hit := false
		for _, tel := range TelValues(b) {
			if _, ok := want[Digits(tel)]; ok {
				hit = true
				break
			}
		}
		if hit {
			removed++
			continue
		}
		kept = append(kept, b)
	}
	return kept, removed
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
