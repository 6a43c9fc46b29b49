package vcf

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// "Admin 7", "Admin-7", "Admin_7" and "Admin7" all split into Admin / 7.
	numberedName = regexp.MustCompile(`^(.*?)(?:\s*[-_ ]\s*)?(\d+)$`)
	trailingNum  = regexp.MustCompile(`^(.+?)(\d+)$`)
)

// DetectSequence finds the name with the largest trailing number and
// returns its base and that number plus one. ok is false when no name has a
// trailing number or the winning name has no base.
func DetectSequence(names []string) (base string, next int, ok bool) {
	best := -1
	for _, name := range names {
		m := numberedName.FindStringSubmatch(strings.TrimSpace(name))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if n > best {
			best = n
			base = strings.TrimSpace(m[1])
		}
	}
	if best < 0 || base == "" {
		return "", 0, false
	}
	return base, best + 1, true
}

// SequenceNames continues the trailing number of base n times:
// ("Admin1", 3) gives Admin1, Admin2, Admin3. It returns nil when base does
// not end in digits.
func SequenceNames(base string, n int) []string {
	m := trailingNum.FindStringSubmatch(strings.TrimSpace(base))
	if m == nil || n <= 0 {
		return nil
	}
	start, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = m[1] + strconv.Itoa(start+i)
	}
	return out
}

// SequenceFilenames is SequenceNames with ext appended to every name.
func SequenceFilenames(base string, n int, ext string) []string {
	names := SequenceNames(base, n)
	for i := range names {
		names[i] += ext
	}
	return names
}
