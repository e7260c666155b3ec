// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/model"
)

// FormatAmount adds comma separators to a token amount.
// e.g., 1234567 -> "1,234,567"
func FormatAmount(n uint64) string {
	return groupDigits(strconv.FormatUint(n, 10))
}

// FormatNumber adds comma separators to a signed integer.
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + groupDigits(strconv.FormatUint(uint64(-(n+1))+1, 10))
	}
	return groupDigits(strconv.FormatInt(n, 10))
}

func groupDigits(s string) string {
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatCompact formats an amount with a K/M/B/T suffix.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M"
func FormatCompact(n uint64) string {
	units := []struct {
		div    uint64
		suffix string
	}{
		{1_000_000_000_000, "T"},
		{1_000_000_000, "B"},
		{1_000_000, "M"},
		{1_000, "K"},
	}
	for _, u := range units {
		if n >= u.div {
			v := decimal.NewFromUint64(n).DivRound(decimal.NewFromUint64(u.div), 1)
			return v.StringFixed(1) + u.suffix
		}
	}
	return strconv.FormatUint(n, 10)
}

// FormatPercent formats a percentage already scaled to 0-100.
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}

// FormatDelta formats a signed amount change with an explicit sign.
func FormatDelta(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + groupDigits(d.Neg().String())
	}
	return "+" + groupDigits(d.String())
}

// FormatStatus returns the display label for a status.
func FormatStatus(s model.Status) string {
	switch s {
	case model.StatusWarning:
		return "WARNING"
	case model.StatusOverBudget:
		return "OVER"
	default:
		return "ok"
	}
}

// FormatAddress shortens an address to its first and last four characters.
func FormatAddress(a address.Address) string {
	s := a.String()
	if len(s) <= 11 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}

// FormatAge formats how long ago t was, relative to now.
// e.g., 90s -> "1m ago", 26h -> "1d 2h ago"
func FormatAge(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h >= 24:
		return fmt.Sprintf("%dd %dh ago", h/24, h%24)
	case h > 0:
		return fmt.Sprintf("%dh %dm ago", h, m)
	default:
		return fmt.Sprintf("%dm ago", m)
	}
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
