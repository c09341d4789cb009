package validate

import (
	"regexp"
	"strings"
)

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@.]{2,}$`)

// PhoneDigits strips whitespace and punctuation, returning digits only.
// A leading '+' is dropped. Letters are kept so shape checks fail on them.
func PhoneDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '(', r == ')', r == '+', r == '\t':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhone accepts Chilean mobile numbers (9 digits starting with 9,
// optionally prefixed by 56) and landlines (7–8 local digits, or 9 digits
// including the area code, optionally prefixed by 56).
func IsValidPhone(s string) bool {
	d := PhoneDigits(s)
	if !allDigits(d) {
		return false
	}
	if len(d) == 11 && strings.HasPrefix(d, "56") {
		d = d[2:]
	}
	switch len(d) {
	case 7, 8:
		return d[0] != '0'
	case 9:
		return d[0] != '0'
	default:
		return false
	}
}

// NormalizePhone renders a valid phone in +56XXXXXXXXX form. Local landlines
// without area code are returned as their digits.
func NormalizePhone(s string) string {
	d := PhoneDigits(s)
	if len(d) == 11 && strings.HasPrefix(d, "56") {
		return "+" + d
	}
	if len(d) == 9 {
		return "+56" + d
	}
	return d
}

// IsValidEmail checks the local@domain.tld shape.
func IsValidEmail(s string) bool {
	return emailRE.MatchString(strings.TrimSpace(s))
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(s string) string {
	s = NormalizeEmail(s)
	at := strings.LastIndexByte(s, '@')
	if at < 1 {
		return "***"
	}
	return s[:1] + "***" + s[at:]
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
