package notify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FirstName extracts a given name from a display name. "Surname, Given" yields the first
// word after the comma; anything else yields the first word.
func FirstName(displayName string) string {
	name := displayName
	if i := strings.Index(name, ","); i >= 0 {
		name = name[i+1:]
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// JoinNames renders names as "A", "A and B" or "A, B and C".
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// nameSlots holds the byte offsets at which resolved names sit in a draft.
type nameSlots struct {
	subject []int
	body    []int
}

func (n nameSlots) empty() bool {
	return len(n.subject) == 0 && len(n.body) == 0
}

// indexAll returns the offsets of every non-overlapping occurrence of token in s.
func indexAll(s, token string) []int {
	var at []int
	for off := 0; ; {
		i := strings.Index(s[off:], token)
		if i < 0 {
			return at
		}
		at = append(at, off+i)
		off += i + len(token)
	}
}

// splice replaces the width bytes at each ascending offset with replacement and returns
// the new text with the offsets of the inserted replacements.
func splice(s string, at []int, width int, replacement string) (string, []int) {
	if len(at) == 0 {
		return s, nil
	}
	var b strings.Builder
	out := make([]int, 0, len(at))
	last := 0
	for _, i := range at {
		b.WriteString(s[last:i])
		out = append(out, b.Len())
		b.WriteString(replacement)
		last = i + width
	}
	b.WriteString(s[last:])
	return b.String(), out
}

// reanchor carries the offsets of token in before over to after, an edited copy of it.
// Text is compared from both ends; offsets inside the edited span are dropped, as are
// offsets where token no longer stands as a whole word.
func reanchor(before, after string, at []int, token string) []int {
	if before == after || len(at) == 0 {
		return at
	}
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}

	var out []int
	for _, i := range at {
		switch {
		case i+len(token) <= prefix:
		case i >= len(before)-suffix:
			i += len(after) - len(before)
		default:
			continue
		}
		if after[i:i+len(token)] == token && wholeWord(after, i, len(token)) {
			out = append(out, i)
		}
	}
	return out
}

func wholeWord(s string, at, width int) bool {
	if at > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:at]); isWordRune(r) {
			return false
		}
	}
	if end := at + width; end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
