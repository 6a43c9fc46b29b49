package vcf

import (
	"strconv"
	"strings"
	"unicode"
)

// Digits keeps only ASCII digits.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// CleanPhone keeps digits and '+', with at most one leading '+'. It does not
// add a '+' that was not there.
func CleanPhone(s string) string {
	s = strings.TrimSpace(s)
	lead := strings.HasPrefix(s, "+")
	d := Digits(s)
	if lead && d != "" {
		return "+" + d
	}
	return d
}

// NormalizePhone is CleanPhone plus a forced leading '+'. Input without any
// digit normalizes to "", never a bare "+", so callers can tell "no number"
// apart with a plain empty check. The result is a fixed point: normalizing it
// again returns it unchanged.
func NormalizePhone(s string) string {
	d := Digits(s)
	if d == "" {
		return ""
	}
	return "+" + d
}

// ensurePlus trims and prefixes '+' without touching the rest of the value.
func ensurePlus(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") {
		return s
	}
	return "+" + s
}

// ExtractPhones treats every non-blank line as one number: trimmed, kept in
// order, duplicates dropped.
func ExtractPhones(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

// NormalizeList normalizes every line of text and drops lines without digits.
func NormalizeList(text string) []string {
	var out []string
	for _, line := range ExtractPhones(text) {
		if p := NormalizePhone(line); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CleanName makes a display name safe for an FN line: ';' and line breaks
// become spaces and runs of whitespace collapse.
func CleanName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ';', '\n', '\r':
			return ' '
		}
		return r
	}, name)
	return strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " ")
}

// CountNonEmptyLines counts lines that are not blank.
func CountNonEmptyLines(text string) int {
	n := 0
	for _, line := range Lines(text) {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func itoa(n int) string { return strconv.Itoa(n) }
