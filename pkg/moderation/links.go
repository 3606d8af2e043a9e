package moderation

import (
	"context"
	"regexp"
	"strings"
)

// Short TLDs that double as English words (meeting.in, finished.me) only
// count as links with a path.
var linkPattern = regexp.MustCompile(`(?i)(?:https?://[^\s]+|www\.[^\s]+|` +
	`\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:com|net|org|io|gg|app|dev|xyz|info|link|ly|tv|biz|site|online|ru|us|uk|br)\b(?:/[^\s]*)?|` +
	`\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:me|co|to|in|id)/[^\s]*)`)

// FindLinks returns every link-like substring of text.
func FindLinks(text string) []string {
	return linkPattern.FindAllString(text, -1)
}

func linkHost(link string) string {
	l := strings.ToLower(link)
	if i := strings.Index(l, "://"); i >= 0 {
		l = l[i+3:]
	}
	if i := strings.IndexAny(l, "/?#"); i >= 0 {
		l = l[:i]
	}
	if i := strings.LastIndexByte(l, '@'); i >= 0 {
		l = l[i+1:]
	}
	if i := strings.IndexByte(l, ':'); i >= 0 {
		l = l[:i]
	}
	return strings.TrimPrefix(strings.TrimRight(l, ".,;:!?)"), "www.")
}

func domainAllowed(host string, allowed []string) bool {
	for _, d := range allowed {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// LinkInspector flags messages carrying links outside the group's allowed
// domains, invite links included.
type LinkInspector struct{}

func NewLinkInspector() *LinkInspector { return &LinkInspector{} }

func (l *LinkInspector) Name() string { return "links" }

func (l *LinkInspector) Inspect(_ context.Context, in Inspection) (Verdict, error) {
	gs := in.Settings
	if !gs.Links.Enabled || in.exempt(gs.Links) {
		return Noop(l.Name()), nil
	}
	for _, link := range FindLinks(in.Event.Content) {
		if domainAllowed(linkHost(link), gs.AllowedDomains) {
			continue
		}
		return verdictFor(l.Name(), gs.Links.Action, gs.muteDuration(), "links are not allowed here"), nil
	}
	return Noop(l.Name()), nil
}
