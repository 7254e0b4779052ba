package sanitize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for quoted history inserted by common mail clients.
var quoteSelectors = []string{
	"blockquote[type=cite]",
	"div.gmail_quote",
	"div.gmail_extra",
	"div.yahoo_quoted",
	"div.moz-cite-prefix",
	"div#appendonsend",
}

// Outlook marks the start of the quoted history; everything after it is history too.
const outlookDivider = "div#divRplyFwdMsg"

// StripQuotedHTML removes quoted replies from an HTML email body and returns
// the remaining body markup.
func StripQuotedHTML(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	divider := doc.Find(outlookDivider)
	divider.NextAll().Remove()
	divider.PrevFiltered("hr").Remove()
	divider.Remove()
	for _, sel := range quoteSelectors {
		doc.Find(sel).Remove()
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return strings.TrimSpace(out), nil
}

var (
	attributionLine = regexp.MustCompile(`(?i)^\s*on\s.+\swrote:\s*$`)
	originalMessage = regexp.MustCompile(`(?i)^\s*-{2,}\s*original message\s*-{2,}\s*$`)
)

// StripQuotedText drops "> " quoted lines and everything after an
// attribution line such as "On Mon, Jan 1, Ann wrote:".
func StripQuotedText(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if attributionLine.MatchString(line) || originalMessage.MatchString(line) {
			break
		}
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
