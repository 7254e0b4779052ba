// Package sanitize cleans user and email supplied content before it is stored
// or shown on public pages.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// bluemonday policies are safe for concurrent use once built.
var (
	stripAll  = bluemonday.StrictPolicy()
	emailBody = bluemonday.UGCPolicy()
)

// Text removes every tag. Entities stay encoded, so the result is safe to
// drop into HTML.
func Text(input string) string { return stripAll.Sanitize(input) }

// HTML keeps basic formatting and http(s) links. Inbound email bodies go
// through it before they are stored.
func HTML(input string) string { return emailBody.Sanitize(input) }

// Plain is Text with entities decoded and whitespace collapsed, for listing
// descriptions rendered as plain text on the marketplace.
func Plain(input string) string {
	return strings.Join(strings.Fields(html.UnescapeString(Text(input))), " ")
}
