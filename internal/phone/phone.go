// Package phone canonicalizes Mexican MSISDNs. WhatsApp delivers sender IDs
// as bare digit strings while billing customers were created through a
// checkout flow that stores whatever the buyer typed, so both a display form
// and a separator-free comparison key are needed.
package phone

import "strings"

// Normalize returns the canonical form of a phone-shaped identifier.
//
// Working on the digit-only projection of the input:
//   - 13 digits starting with "521": already country+trunk, just add "+".
//   - 12 digits starting with "52": trunk digit missing, insert it.
//   - 10 digits: bare subscriber number, prepend "+52 1 ".
//   - 11 digits starting with "1": country code missing, prepend "+52 ".
//
// Anything else is returned as-is with a leading "+" if absent. Total
// function: malformed input falls through, never errors.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	digits := digitsOnly(raw)

	switch {
	case strings.HasPrefix(digits, "521") && len(digits) == 13:
		return "+" + digits
	case strings.HasPrefix(digits, "52") && len(digits) == 12:
		return "+52 1 " + digits[2:]
	case len(digits) == 10:
		return "+52 1 " + digits
	case strings.HasPrefix(digits, "1") && len(digits) == 11:
		return "+52 " + digits
	}

	if strings.HasPrefix(raw, "+") {
		return raw
	}
	return "+" + digits
}

// CompareKey is Normalize with internal whitespace and hyphens removed, for
// exact equality against external systems that drop separators.
func CompareKey(raw string) string {
	normalized := Normalize(raw)
	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if r == ' ' || r == '\t' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StripPlus returns s without "+", spaces or hyphens. Used for billing
// search variants where even the leading plus is absent.
func StripPlus(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '+' || r == ' ' || r == '\t' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HasCountryCode reports whether the identifier's digit projection starts
// with any of the given country calling codes.
func HasCountryCode(raw string, codes []string) bool {
	digits := digitsOnly(raw)
	for _, code := range codes {
		if code != "" && strings.HasPrefix(digits, code) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
