package parser

import (
	"strings"
	"unicode"
)

// token is one whitespace-delimited unit of a command. Whitespace inside a
// quoted span does not split.
type token struct {
	raw string
}

func (t token) String() string { return t.raw }

// quoted reports whether the whole token is one quoted string
func (t token) quoted() bool {
	return len(t.raw) >= 2 && isQuote(t.raw[0]) && t.raw[len(t.raw)-1] == t.raw[0]
}

// value returns the token with surrounding quotes removed
func (t token) value() string {
	return unquote(t.raw)
}

func isQuote(b byte) bool { return b == '"' || b == '\'' }

func unquote(s string) string {
	if len(s) >= 2 && isQuote(s[0]) && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// quoteScanner tracks whether a byte offset sits inside a quoted span. A quote
// opens a span only at the start of a value (after whitespace, a separator or
// an opening bracket) and only when it is closed later. An apostrophe inside a
// word is text.
type quoteScanner struct {
	quote   byte
	escaped bool
}

// step consumes s[i] and reports whether it is outside any quoted span
// (quote characters themselves count as inside).
func (q *quoteScanner) step(s string, i int) bool {
	b := s[i]
	if q.quote != 0 {
		switch {
		case q.escaped:
			q.escaped = false
		case b == '\\':
			q.escaped = true
		case b == q.quote:
			q.quote = 0
		}
		return false
	}
	if opensQuote(s, i) {
		q.quote = b
		return false
	}
	return true
}

func opensQuote(s string, i int) bool {
	if !isQuote(s[i]) {
		return false
	}
	if i > 0 && !isQuoteBoundary(s[i-1]) {
		return false
	}
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case s[i]:
			return true
		}
	}
	return false
}

func isQuoteBoundary(b byte) bool {
	switch b {
	case '=', ':', ',', '(', '[', '{':
		return true
	}
	return isSpace(b)
}

// tokenize splits s on whitespace outside quotes. An unterminated quote is
// literal text.
func tokenize(s string) []token {
	var (
		tokens []token
		q      quoteScanner
		start  = -1
	)
	for i := 0; i < len(s); i++ {
		outside := q.step(s, i)
		if outside && isSpace(s[i]) {
			if start >= 0 {
				tokens = append(tokens, token{raw: s[start:i]})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{raw: s[start:]})
	}
	return tokens
}

func isSpace(b byte) bool {
	return unicode.IsSpace(rune(b))
}

// splitOutsideQuotes splits s on every occurrence of sep that is not inside a quoted span
func splitOutsideQuotes(s, sep string) []string {
	if sep == "" {
		return []string{s}
	}
	var (
		parts []string
		q     quoteScanner
		last  int
	)
	for i := 0; i < len(s); i++ {
		if q.quote == 0 && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[last:i])
			i += len(sep) - 1
			last = i + 1
			continue
		}
		q.step(s, i)
	}
	return append(parts, s[last:])
}

// containsOutsideQuotes reports whether sep occurs outside any quoted span
func containsOutsideQuotes(s, sep string) bool {
	return len(splitOutsideQuotes(s, sep)) > 1
}

// joinTokens rebuilds text from tokens with single spaces
func joinTokens(tokens []token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.raw
	}
	return strings.Join(parts, " ")
}

// splitKeyValue splits raw at the first sep outside quotes when the left side
// is an identifier. The value is returned unquoted.
func splitKeyValue(raw string, sep byte) (key, value string, ok bool) {
	var q quoteScanner
	for i := 0; i < len(raw); i++ {
		if q.quote == 0 && raw[i] == sep {
			key = raw[:i]
			if !isIdentifier(key) {
				return "", "", false
			}
			return key, unquote(raw[i+1:]), true
		}
		q.step(raw, i)
	}
	return "", "", false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
