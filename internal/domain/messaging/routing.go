package messaging

import (
	"net/mail"
	"regexp"
	"strings"
)

// Route kinds.
const (
	RouteReply  = "reply"
	RouteTenant = "tenant"
	RouteNone   = "none"
)

const replyPrefix = "reply+"

// Route is where an inbound email should go.
type Route struct {
	Kind  string
	Token string
	Slug  string
}

// ResolveRoute picks the destination from the recipient list. A reply
// address wins over a tenant mailbox; recipients outside domain are ignored.
func ResolveRoute(recipients []string, domain string) Route {
	domain = strings.ToLower(strings.TrimSpace(domain))
	route := Route{Kind: RouteNone}
	for _, rcpt := range recipients {
		local, host := splitAddress(rcpt)
		if local == "" || host != domain {
			continue
		}
		if strings.HasPrefix(local, replyPrefix) {
			if token := strings.TrimPrefix(local, replyPrefix); token != "" {
				return Route{Kind: RouteReply, Token: token}
			}
			continue
		}
		if route.Kind == RouteNone {
			route = Route{Kind: RouteTenant, Slug: local}
		}
	}
	return route
}

// ReplyAddress is the Reply-To address that routes answers back to a thread.
func ReplyAddress(token, domain string) string {
	return replyPrefix + token + "@" + domain
}

// AddressOf extracts the bare lower-case address from a header value such as "Ann <ann@example.com>".
func AddressOf(raw string) string {
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.Trim(strings.TrimSpace(raw), "<>"))
}

// NameOf returns the display name of a header address, if any.
func NameOf(raw string) string {
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.TrimSpace(addr.Name)
	}
	return ""
}

func splitAddress(raw string) (local, host string) {
	addr := AddressOf(raw)
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return "", ""
	}
	return addr[:at], addr[at+1:]
}

var subjectPrefix = regexp.MustCompile(`(?i)^\s*(re|fwd?|aw|sv|wg)(\[\d+\])?\s*:\s*`)

// NormalizeSubject strips reply and forward prefixes and folds case and spacing.
func NormalizeSubject(subject string) string {
	s := subject
	for {
		stripped := subjectPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ReplySubject prefixes "Re: " unless the subject is already a reply.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}
