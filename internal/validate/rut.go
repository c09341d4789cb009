// Package validate checks and formats the identity fields collected during a
// booking: national ID (RUT), phone and email.
package validate

import (
	"strconv"
	"strings"
)

// CleanRUT strips dots, hyphens and whitespace and upper-cases the check character.
func CleanRUT(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= '0' && r <= '9', r == 'K':
			b.WriteRune(r)
		case r == '.', r == '-', r == ' ', r == '\t':
		default:
			// Any other rune makes the value unusable; keep it so length/shape checks fail.
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ComputeCheckDigit returns the modulo-11 check character for a numeric RUT body.
// Weights 2..7 are applied from the rightmost digit, cycling.
func ComputeCheckDigit(body string) (byte, bool) {
	if body == "" {
		return 0, false
	}
	sum, weight := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	switch rem := 11 - sum%11; rem {
	case 11:
		return '0', true
	case 10:
		return 'K', true
	default:
		return byte('0' + rem), true
	}
}

// IsValidRUT reports whether s is a well-formed RUT whose check character
// matches the modulo-11 checksum of its body.
func IsValidRUT(s string) bool {
	clean := CleanRUT(s)
	if len(clean) < 8 || len(clean) > 9 {
		return false
	}
	body, check := clean[:len(clean)-1], clean[len(clean)-1]
	want, ok := ComputeCheckDigit(body)
	if !ok {
		return false
	}
	return want == check
}

// FormatRUT renders a RUT as 12.345.678-5. Invalid input is returned trimmed.
func FormatRUT(s string) string {
	clean := CleanRUT(s)
	if len(clean) < 2 {
		return strings.TrimSpace(s)
	}
	body, check := clean[:len(clean)-1], clean[len(clean)-1:]
	if _, err := strconv.Atoi(body); err != nil {
		return strings.TrimSpace(s)
	}
	var parts []string
	for len(body) > 3 {
		parts = append([]string{body[len(body)-3:]}, parts...)
		body = body[:len(body)-3]
	}
	parts = append([]string{body}, parts...)
	return strings.Join(parts, ".") + "-" + check
}

// MaskRUT hides all but the last three characters, for log lines.
func MaskRUT(s string) string {
	clean := CleanRUT(s)
	if len(clean) <= 3 {
		return "***"
	}
	return strings.Repeat("*", len(clean)-3) + clean[len(clean)-3:]
}
