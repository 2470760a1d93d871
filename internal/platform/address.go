package platform

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	groupSuffix   = "@g.us"
	contactSuffix = "@c.us"
)

// DefaultInviteHost is the host of invitation links when none is configured.
const DefaultInviteHost = "chat.whatsapp.com"

// NormalizeKey reduces an account phone identifier to digits and '+'.
func NormalizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClientID is the key without '+', used for credential directory names.
func ClientID(key string) string {
	return strings.ReplaceAll(NormalizeKey(key), "+", "")
}

// GroupChatID addresses a group. IDs already carrying a suffix are kept.
func GroupChatID(id string) string {
	if strings.Contains(id, "@") {
		return id
	}
	return id + groupSuffix
}

// NumberChatID addresses a raw phone number: every non-digit is dropped.
func NumberChatID(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String() + contactSuffix
}

// ContactChatID addresses a saved contact. IDs already carrying a suffix
// are kept.
func ContactChatID(id string) string {
	if strings.Contains(id, "@") {
		return id
	}
	return id + contactSuffix
}

// IsGroupID reports whether a chat ID addresses a group.
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, groupSuffix)
}

// InviteMatcher extracts invite codes from links on one host.
type InviteMatcher struct {
	re *regexp.Regexp
}

// NewInviteMatcher compiles a matcher for host, or DefaultInviteHost when
// host is empty.
func NewInviteMatcher(host string) (*InviteMatcher, error) {
	if host == "" {
		host = DefaultInviteHost
	}
	re, err := regexp.Compile(regexp.QuoteMeta(host) + `/([A-Za-z0-9]+)`)
	if err != nil {
		return nil, fmt.Errorf("platform: invite host %q: %w", host, err)
	}
	return &InviteMatcher{re: re}, nil
}

// Code returns the invite code in link, or "" when link does not match.
func (m *InviteMatcher) Code(link string) string {
	match := m.re.FindStringSubmatch(link)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}
