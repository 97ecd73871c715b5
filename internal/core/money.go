// Package core holds the domain types of the ledger and the helpers for
// parsing and formatting yen amounts.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseYen converts a user-entered amount to whole yen.
//
// It accepts plain digits plus the decorations people paste from receipts:
// a leading ¥ or ￥, thousands separators, a trailing 円, and a fractional
// part (which is dropped, yen has no minor unit). Negative values are rejected.
//
// Examples:
//
//	ParseYen("3000")    -> 3000, nil
//	ParseYen("¥12,000") -> 12000, nil
//	ParseYen("800円")    -> 800, nil
//	ParseYen("1500.7")  -> 1500, nil
func ParseYen(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "¥")
	s = strings.TrimPrefix(s, "￥")
	s = strings.TrimSuffix(s, "円")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrParse)
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		frac := s[i+1:]
		for _, r := range frac {
			if !unicode.IsDigit(r) {
				return 0, fmt.Errorf("%w: amount %q", ErrParse, s)
			}
		}
		s = s[:i]
		if s == "" {
			s = "0"
		}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: amount %q", ErrParse, s)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", ErrParse, s)
	}
	return v, nil
}

// FormatYen renders an amount the way the client shows it, e.g. ¥12,000.
func FormatYen(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("¥")
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
