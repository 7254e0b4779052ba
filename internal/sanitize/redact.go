package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	EmailPlaceholder = "[email removed]"
	PhonePlaceholder = "[phone removed]"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Candidate phone numbers; digit counts decide whether a match is redacted.
	phonePattern   = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{6,}\d`)
	isoDatePattern = regexp.MustCompile(`\b\d{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`)
)

// RedactContacts replaces email addresses and phone numbers in text.
// A phone is a run of at least 10 digits, or 8 when written with a leading +.
// Dates and prices have fewer digits and are kept, as are ISO dates inside
// a longer run such as a date range.
func RedactContacts(text string) string {
	return redactPhones(emailPattern.ReplaceAllString(text, EmailPlaceholder))
}

func redactPhones(text string) string {
	return phonePattern.ReplaceAllStringFunc(text, func(match string) string {
		dates := isoDatePattern.FindAllStringIndex(match, -1)
		if dates == nil {
			return redactPhone(match)
		}
		var b strings.Builder
		last := 0
		for _, d := range dates {
			b.WriteString(redactPhones(match[last:d[0]]))
			b.WriteString(match[d[0]:d[1]])
			last = d[1]
		}
		b.WriteString(redactPhones(match[last:]))
		return b.String()
	})
}

func redactPhone(match string) string {
	digits := 0
	for _, r := range match {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	need := 10
	if strings.HasPrefix(match, "+") {
		need = 8
	}
	if digits < need {
		return match
	}
	return PhonePlaceholder
}
