// Package core provides number parsing and formatting utilities.
//
// Amounts typed by farmers arrive in whatever locale the keyboard produced:
// "1.250.000", "1,250,000.50", "2,5" or an accounting negative "(15.000)".
// ToNum accepts all of them and never fails; ParseNum is the strict
// variant used when the caller must reject garbage.
package core

import (
	"math"
	"strconv"
	"strings"
)

var ErrInvalidNumber = invalid("invalid number")

// ToNum converts a locale-ambiguous numeric string to a finite float64.
//
// When both ',' and '.' occur, the one that occurs last is the decimal
// separator and the other is a thousands separator. When only one kind
// occurs, several occurrences mean thousands grouping and a single
// occurrence is the decimal separator. Unparseable input yields 0.
//
// Examples:
//
//	ToNum("1,5")          -> 1.5
//	ToNum("2.75")         -> 2.75
//	ToNum("1.234.567,89") -> 1234567.89
//	ToNum("(1.500,25)")   -> -1500.25
//	ToNum("abc")          -> 0
func ToNum(s string) float64 {
	v, err := ParseNum(s)
	if err != nil {
		return 0
	}
	return v
}

// ParseNum is ToNum that reports unparseable input instead of returning 0.
func ParseNum(s string) (float64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if strings.HasPrefix(s, "-") {
		neg = true
	}
	s = strings.ReplaceAll(s, "-", "")
	if !strings.ContainsAny(s, "0123456789") {
		return 0, ErrInvalidNumber
	}

	s = normalizeSeparators(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidNumber
	}
	if neg && v != 0 {
		v = -v
	}
	return v, nil
}

// normalizeSeparators rewrites s so that '.' is the only decimal separator
// and thousands separators are gone.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	default:
		return s
	}
}

// FormatRupiah renders v rounded to whole rupiah with '.' grouping,
// e.g. 1234567.6 -> "Rp 1.234.568".
func FormatRupiah(v float64) string {
	r := math.Round(v)
	if r < 0 {
		return "-Rp " + groupThousands(int64(-r))
	}
	return "Rp " + groupThousands(int64(r))
}

// FormatDecimal renders v with up to decimals fraction digits using ','
// as decimal separator and '.' grouping. Trailing zeros are trimmed.
func FormatDecimal(v float64, decimals int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	n, _ := strconv.ParseInt(intPart, 10, 64)
	out := groupThousands(n)
	if frac != "" {
		out += "," + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

func groupThousands(n int64) string {
	digits := strconv.FormatInt(n, 10)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Ratio returns num/den, or 0 when den is 0.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
