// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"strconv"
	"strings"
	"unicode"
)

// readOnlyKeywords are the leading keywords of statements that never need a
// commit. Anything else, including keywords this list does not know about,
// is treated as mutating.
var readOnlyKeywords = map[string]bool{
	"SELECT":   true,
	"PRAGMA":   true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
}

// leadingKeyword returns the first word of statement in upper case, skipping
// whitespace, comments and opening parentheses.
func leadingKeyword(statement string) string {
	s := statement
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && r != '_' })
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

// IsMutating reports whether statement must run inside a committed
// transaction.
func IsMutating(statement string) bool {
	return !readOnlyKeywords[leadingKeyword(statement)]
}

// IsSelect reports whether statement is a query accepted by Connector.Select.
func IsSelect(statement string) bool {
	switch leadingKeyword(statement) {
	case "SELECT", "WITH":
		return true
	}
	return false
}

// TranslatePlaceholders rewrites every "%s" outside quoted literals,
// identifiers and comments to the native token of style, and unescapes "%%".
// PlaceholderDollar numbers the tokens from $1. For PlaceholderFormat the
// statement is returned unchanged.
func TranslatePlaceholders(statement string, style PlaceholderStyle) string {
	return translatePlaceholders(statement, style, false)
}

// TranslateBackslashPlaceholders is TranslatePlaceholders for engines where a
// backslash escapes the next character inside quoted literals (MySQL).
func TranslateBackslashPlaceholders(statement string, style PlaceholderStyle) string {
	return translatePlaceholders(statement, style, true)
}

func translatePlaceholders(statement string, style PlaceholderStyle, backslash bool) string {
	if style == PlaceholderFormat || !strings.Contains(statement, "%") {
		return statement
	}
	out, _ := scanPlaceholders(statement, style, backslash)
	return out
}

// CountPlaceholders returns the number of "%s" placeholders in statement.
func CountPlaceholders(statement string) int {
	_, n := scanPlaceholders(statement, PlaceholderQuestion, false)
	return n
}

// closingQuote returns the index of the quote q closing the literal that
// opens at s[0], or -1.
func closingQuote(s string, q byte, backslash bool) int {
	for j := 1; j < len(s); j++ {
		switch {
		case backslash && q != '`' && s[j] == '\\':
			j++
		case s[j] == q:
			return j
		}
	}
	return -1
}

func scanPlaceholders(s string, style PlaceholderStyle, backslash bool) (string, int) {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			// Copy through the closing quote. Doubled quotes reopen the
			// literal on the next pass, which copies them verbatim too.
			j := closingQuote(s[i:], c, backslash)
			if j < 0 {
				b.WriteString(s[i:])
				return b.String(), n
			}
			b.WriteString(s[i : i+j+1])
			i += j
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				b.WriteString(s[i:])
				return b.String(), n
			}
			b.WriteString(s[i : i+j+1])
			i += j
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				b.WriteString(s[i:])
				return b.String(), n
			}
			b.WriteString(s[i : i+j+4])
			i += j + 3
		case c == '%' && i+1 < len(s) && s[i+1] == 's':
			n++
			if style == PlaceholderDollar {
				b.WriteString("$" + strconv.Itoa(n))
			} else {
				b.WriteString(string(style))
			}
			i++
		case c == '%' && i+1 < len(s) && s[i+1] == '%':
			b.WriteByte('%')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), n
}

// quoteIdent quotes name with q, doubling any embedded q.
func quoteIdent(name string, q byte) string {
	qs := string(q)
	return qs + strings.ReplaceAll(name, qs, qs+qs) + qs
}
