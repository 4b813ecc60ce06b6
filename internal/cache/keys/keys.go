// Package keys builds the cache keys for SQL results.
package keys

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const prefix = "frm"

const maxQueryTextLen = 96

var punct = regexp.MustCompile(`\s*([=<>!\.,\(\)|'])\s*`)

// Result keys a query result by table, table generation and normalized SQL.
// Bumping the generation orphans every result stored under the old one.
func Result(table string, generation int64, sql string) string {
	norm := NormalizeSQL(sql)
	safe := sanitize(norm)
	if len(safe) > maxQueryTextLen {
		safe = safe[:maxQueryTextLen]
	}
	return fmt.Sprintf("%s:%s:g%d:q=%s:f=%016x", prefix, sanitize(strings.TrimSpace(table)), generation, safe, xxhash.Sum64String(norm))
}

// Generation is the counter key holding the current generation of table.
func Generation(table string) string {
	return prefix + ":gen:" + sanitize(strings.TrimSpace(table))
}

// NormalizeSQL collapses whitespace so formatting differences share a key.
// Keyword case is preserved since string literals are case sensitive.
func NormalizeSQL(s string) string {
	if s == "" {
		return ""
	}
	s = collapseWhitespace(strings.TrimSpace(s))
	return punct.ReplaceAllString(s, "$1")
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case isSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '=' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if isSpace(r) {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
