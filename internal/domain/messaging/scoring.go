package messaging

import (
	"net/mail"
	"net/netip"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Verdict thresholds on the additive score.
const (
	SpamThreshold       = 7.0
	SuspiciousThreshold = 4.0
)

// Assessment is the scored verdict for one inbound email.
type Assessment struct {
	Score   float64  `json:"score"`
	Verdict string   `json:"verdict"`
	Reasons []string `json:"reasons"`
}

var (
	urlPattern      = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"')\]]+`)
	domainLike      = regexp.MustCompile(`(?i)^(https?://)?([a-z0-9-]+\.)+[a-z]{2,}(/\S*)?$`)
	embeddedAddress = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

var shorteners = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "t.co": true, "goo.gl": true, "ow.ly": true, "is.gd": true,
	"buff.ly": true, "rebrand.ly": true, "cutt.ly": true, "tiny.cc": true, "shorturl.at": true, "rb.gy": true,
}

var spamPhrases = []string{
	"act now",
	"limited time offer",
	"wire transfer",
	"western union",
	"gift card",
	"verify your account",
	"click here",
	"congratulations you have won",
	"100% free",
	"risk-free",
	"urgent response",
	"bitcoin",
	"shipping agent",
	"pet delivery service",
}

var dangerousExtensions = map[string]bool{
	".exe": true, ".scr": true, ".bat": true, ".cmd": true, ".com": true, ".pif": true,
	".js": true, ".jse": true, ".vbs": true, ".vbe": true, ".wsf": true, ".wsh": true,
	".ps1": true, ".msi": true, ".jar": true, ".hta": true, ".lnk": true, ".iso": true,
	".dll": true, ".reg": true, ".cpl": true, ".docm": true, ".xlsm": true,
}

type link struct {
	href string
	text string
}

// Assess scores an inbound email. Rules are additive; the verdict is threat
// for dangerous attachments or a deceptive link from a sender failing SPF or
// DKIM, and otherwise follows the score thresholds.
func Assess(email InboundEmail) Assessment {
	var a Assessment
	add := func(points float64, reason string) {
		a.Score += points
		a.Reasons = append(a.Reasons, reason)
	}

	auth := authResults(email)
	if auth["spf"] {
		add(2, "spf_fail")
	}
	if auth["dkim"] {
		add(2, "dkim_fail")
	}
	if auth["dmarc"] {
		add(3, "dmarc_fail")
	}
	if strings.EqualFold(strings.TrimSpace(email.Header("X-Spam-Flag")), "yes") {
		add(5, "provider_spam_flag")
	}

	links := extractLinks(email)
	if len(links) > 10 {
		add(1.5, "many_links")
	}
	shortened, ipLiteral, mismatch := 0, false, false
	for _, l := range links {
		host := hostOf(l.href)
		if host == "" {
			continue
		}
		if shorteners[host] && shortened < 3 {
			shortened++
			add(1, "shortener_link")
		}
		if _, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
			ipLiteral = true
		}
		if !mismatch && anchorMismatch(l, host) {
			mismatch = true
		}
	}
	if ipLiteral {
		add(2, "ip_literal_link")
	}
	if mismatch {
		add(3, "link_text_mismatch")
	}

	content := strings.ToLower(email.Subject + "\n" + email.Text + "\n" + htmlText(email.HTML))
	phrases := 0
	for _, phrase := range spamPhrases {
		if phrases == 3 {
			break
		}
		if strings.Contains(content, phrase) {
			phrases++
			add(1.5, "spam_phrase:"+phrase)
		}
	}

	if shouting(email.Subject) {
		add(1, "shouting_subject")
	}
	if displayNameSpoof(email.From) {
		add(2, "display_name_spoof")
	}
	if strings.TrimSpace(email.Text) == "" && strings.TrimSpace(htmlText(email.HTML)) == "" {
		add(0.5, "empty_body")
	}

	dangerous := false
	for _, att := range email.Attachments {
		if isDangerous(att) {
			dangerous = true
			a.Reasons = append(a.Reasons, "dangerous_attachment:"+att.Filename)
		}
	}

	switch {
	case dangerous, mismatch && (auth["spf"] || auth["dkim"]):
		a.Verdict = VerdictThreat
	case a.Score >= SpamThreshold:
		a.Verdict = VerdictSpam
	case a.Score >= SuspiciousThreshold:
		a.Verdict = VerdictSuspicious
	default:
		a.Verdict = VerdictClean
	}
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	return a
}

var authPattern = regexp.MustCompile(`(?i)\b(spf|dkim|dmarc)=(\w+)`)

// authResults reports which of spf, dkim and dmarc failed according to the
// Authentication-Results and Received-SPF headers.
func authResults(email InboundEmail) map[string]bool {
	failed := map[string]bool{}
	for _, m := range authPattern.FindAllStringSubmatch(email.Header("Authentication-Results"), -1) {
		mech, result := strings.ToLower(m[1]), strings.ToLower(m[2])
		if result == "fail" || result == "softfail" || result == "permerror" {
			failed[mech] = true
		}
	}
	spf := strings.ToLower(strings.TrimSpace(email.Header("Received-SPF")))
	if strings.HasPrefix(spf, "fail") || strings.HasPrefix(spf, "softfail") {
		failed["spf"] = true
	}
	return failed
}

func extractLinks(email InboundEmail) []link {
	var links []link
	seen := map[string]bool{}
	if email.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.HTML)); err == nil {
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				href = strings.TrimSpace(href)
				if !strings.HasPrefix(strings.ToLower(href), "http") {
					return
				}
				seen[href] = true
				links = append(links, link{href: href, text: strings.TrimSpace(s.Text())})
			})
		}
	}
	for _, href := range urlPattern.FindAllString(email.Text, -1) {
		if seen[href] {
			continue
		}
		seen[href] = true
		links = append(links, link{href: href})
	}
	return links
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// anchorMismatch reports anchor text that shows one domain while the link goes to another.
func anchorMismatch(l link, host string) bool {
	text := strings.TrimSpace(l.text)
	if text == "" || !domainLike.MatchString(text) {
		return false
	}
	if !strings.Contains(strings.ToLower(text), "://") {
		text = "http://" + text
	}
	shown := hostOf(text)
	if shown == "" || shown == host {
		return false
	}
	return !strings.HasSuffix(host, "."+shown) && !strings.HasSuffix(shown, "."+host)
}

func htmlText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Text()
}

// shouting is a subject of mostly capital letters.
func shouting(subject string) bool {
	letters, upper := 0, 0
	for _, r := range subject {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 8 && float64(upper)/float64(letters) >= 0.8
}

// displayNameSpoof catches a display name carrying a different address than the real sender.
func displayNameSpoof(from string) bool {
	addr, err := mail.ParseAddress(from)
	if err != nil || addr.Name == "" {
		return false
	}
	for _, shown := range embeddedAddress.FindAllString(addr.Name, -1) {
		if !strings.EqualFold(shown, addr.Address) {
			return true
		}
	}
	return false
}

func isDangerous(att Attachment) bool {
	if dangerousExtensions[strings.ToLower(path.Ext(att.Filename))] {
		return true
	}
	switch strings.ToLower(att.ContentType) {
	case "application/x-msdownload", "application/x-msdos-program", "application/x-ms-installer",
		"application/hta", "application/x-sh":
		return true
	}
	return false
}
