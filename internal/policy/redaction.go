// Package policy holds the rules applied to caller data before it leaves the
// turn loop, such as what may be written to logs.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Redact is RedactPII without the change flag, for log attributes.
func Redact(input string) string {
	out, _ := RedactPII(input)
	return out
}

// MaskNumber keeps the country prefix and the last four digits of a phone
// number so calls stay distinguishable in logs.
func MaskNumber(number string) string {
	number = strings.TrimSpace(number)
	if len(number) <= 4 {
		return strings.Repeat("*", len(number))
	}
	head := 0
	if strings.HasPrefix(number, "+") && len(number) > 6 {
		head = 2
	}
	tail := number[len(number)-4:]
	return number[:head] + strings.Repeat("*", len(number)-head-4) + tail
}
