package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a prompt identifier: NFKC, trim, lowercase, and
// collapse every run of non-alphanumeric characters into one underscore.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(name)))
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// SplitCriteria splits a criteria string on ",", "|", ";" and the word "and"
func SplitCriteria(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|' || r == ';'
	}) {
		for _, c := range splitOnWord(part, "and") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// splitOnWord splits s around a standalone, case-insensitive word
func splitOnWord(s, word string) []string {
	lower := strings.ToLower(s)
	needle := " " + word + " "
	var out []string
	for {
		idx := strings.Index(lower, needle)
		if idx < 0 {
			return append(out, s)
		}
		out = append(out, s[:idx])
		s = s[idx+len(needle):]
		lower = lower[idx+len(needle):]
	}
}

// ParseArgs turns a raw argument string into a map. key="v", key='v' and key=v
// pairs become entries; text without a key is collected under "input".
func ParseArgs(raw string) map[string]interface{} {
	args := make(map[string]interface{})
	var inputs []string
	for _, t := range tokenize(strings.TrimSpace(raw)) {
		if key, value, ok := splitKeyValue(t.raw, '='); ok {
			args[key] = value
			continue
		}
		inputs = append(inputs, t.value())
	}
	if len(inputs) > 0 {
		args["input"] = strings.Join(inputs, " ")
	}
	return args
}
