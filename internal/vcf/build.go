package vcf

import (
	"strings"
)

// Numbering selects how FromPhones suffixes display names.
type Numbering struct {
	// Start, when > 0, numbers every card from Start upward; batches that
	// share a counter pass the next value along.
	Start int
	// Force numbers 1..N even for a single phone.
	Force bool
}

// FromPhones builds one card per phone named after name. Without Start or
// Force only lists of more than one phone are numbered.
func FromPhones(phones []string, name string, num Numbering) []Block {
	name = CleanName(name)
	out := make([]Block, 0, len(phones))
	for i, p := range phones {
		p = ensurePlus(p)
		label := name
		switch {
		case num.Start > 0:
			label = name + " " + itoa(num.Start+i)
		case num.Force || len(phones) > 1:
			label = name + " " + itoa(i+1)
		}
		out = append(out, NewCard(label, p))
	}
	return out
}

// PhonesFromBlocks returns every TEL value of every block, normalized, in order.
func PhonesFromBlocks(blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		for _, tel := range TelValues(b) {
			if p := NormalizePhone(tel); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// NameCount is one contact group of a FORMAT text: its name and how many
// numbers it produced.
type NameCount struct {
	Name  string
	Count int
}

// FormatResult is a parsed FORMAT text.
type FormatResult struct {
	Filename string
	Blocks   []Block
	Stats    []NameCount
}

// Numbers sums the per-name counts.
func (r FormatResult) Numbers() int {
	n := 0
	for _, s := range r.Stats {
		n += s.Count
	}
	return n
}

// ParseFormatText reads the FORMAT layout:
//
//	filename
//	<blank>
//	Contact name
//	628...
//	628...
//	<blank>
//	Other name
//	628...
//
// Groups are separated by blank lines; a group needs a name and at least
// one number. ok is false when the layout does not hold.
func ParseFormatText(text string) (FormatResult, bool) {
	lines := Lines(text)
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) < 4 || strings.TrimSpace(lines[1]) != "" {
		return FormatResult{}, false
	}
	filename := strings.TrimSpace(lines[0])
	if strings.TrimSuffix(filename, ".vcf") == "" {
		return FormatResult{}, false
	}
	if !strings.HasSuffix(filename, ".vcf") {
		filename += ".vcf"
	}

	var (
		groups [][]string
		cur    []string
	)
	for _, line := range lines[2:] {
		if line = strings.TrimSpace(line); line != "" {
			cur = append(cur, line)
			continue
		}
		if len(cur) > 0 {
			groups = append(groups, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	res := FormatResult{Filename: filename}
	index := make(map[string]int)
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		name := CleanName(g[0])
		var phones []string
		for _, raw := range g[1:] {
			if p := CleanPhone(raw); p != "" {
				phones = append(phones, ensurePlus(p))
			}
		}
		if name == "" || len(phones) == 0 {
			continue
		}
		for i, p := range phones {
			label := name
			if len(phones) > 1 {
				label = name + " " + itoa(i+1)
			}
			res.Blocks = append(res.Blocks, NewCard(label, p))
		}
		// a repeated name keeps its first position and the latest count
		if at, seen := index[name]; seen {
			res.Stats[at].Count = len(phones)
			continue
		}
		index[name] = len(res.Stats)
		res.Stats = append(res.Stats, NameCount{Name: name, Count: len(phones)})
	}
	if len(res.Blocks) == 0 {
		return FormatResult{}, false
	}
	return res, true
}

// MergeTxt concatenates the non-blank lines of every text in upload order.
// A line repeating an earlier one, ignoring surrounding spaces, is dropped;
// kept lines are untouched.
func MergeTxt(texts []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range texts {
		for _, line := range Lines(t) {
			key := strings.TrimSpace(line)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, line)
		}
	}
	return out
}

// MergeVcf gathers the contacts of every text, dropping repeats of the same
// name and phone.
func MergeVcf(texts []string) []Contact {
	seen := make(map[Contact]struct{})
	var out []Contact
	for _, t := range texts {
		for _, c := range Contacts(ParseBlocks(t)) {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Text renders lines as file content with a trailing newline.
func Text(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
