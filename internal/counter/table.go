// Package counter keeps one row per calendar day holding the number of tracked calls.
package counter

import (
	"context"
	"fmt"
	"strings"
)

// Table is a remote two-dimensional store addressed with A1 notation
// ("Sheet1!A:B", "Sheet1!B7"). It has no uniqueness or transactional guarantees.
type Table interface {
	// Read returns every row in rng. Rows may be ragged; missing cells are absent.
	Read(ctx context.Context, rng string) ([][]string, error)
	// Update overwrites the cells starting at rng.
	Update(ctx context.Context, rng string, rows [][]any) error
	// Append adds rows after the last non-empty row of rng.
	Append(ctx context.Context, rng string, rows [][]any) error
}

// A1 prefixes ref with the tab name, quoting names that are not plain identifiers.
func A1(tab, ref string) string {
	if needsQuote(tab) {
		tab = "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	return tab + "!" + ref
}

func needsQuote(tab string) bool {
	for _, r := range tab {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

// SplitA1 is the inverse of A1.
func SplitA1(rng string) (tab, ref string, err error) {
	i := strings.LastIndex(rng, "!")
	if i < 0 {
		return "", "", fmt.Errorf("range %q has no sheet name", rng)
	}
	tab, ref = rng[:i], rng[i+1:]
	if len(tab) >= 2 && tab[0] == '\'' && tab[len(tab)-1] == '\'' {
		tab = strings.ReplaceAll(tab[1:len(tab)-1], "''", "'")
	}
	return tab, ref, nil
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

// leadingInt parses the leading decimal integer of s the way a lenient
// spreadsheet reader does: "12", " 12 ", "12.7" and "12abc" all give 12.
// ok is false when s has no leading digits.
func leadingInt(s string) (n int, ok bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		ok = true
	}
	if neg {
		n = -n
	}
	return n, ok
}
