// Package platform defines the boundary to the external messaging platform:
// the Connection interface every session wraps, the lifecycle events it
// emits, and the chat addressing rules the rest of groupyard relies on.
package platform

import (
	"context"
	"time"
)

// EventKind identifies a Connection lifecycle event.
type EventKind string

const (
	EventScanRequired  EventKind = "scan_required"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailed    EventKind = "auth_failed"
	EventDisconnected  EventKind = "disconnected"
)

// Event is emitted by a Connection on its Events channel.
type Event struct {
	Kind   EventKind
	QR     string // scan payload, set for EventScanRequired
	Reason string // set for EventAuthFailed and EventDisconnected
	At     time.Time
}

// Connection is one authenticated link to the messaging platform for a
// single account. Implementations must be safe for use by one caller at a
// time; groupyard never issues concurrent calls on the same Connection.
type Connection interface {
	// Initialize starts login. It may block until the platform answers and
	// reports progress on Events.
	Initialize(ctx context.Context) error

	// Events returns the lifecycle event stream. The channel is closed
	// when the Connection is closed.
	Events() <-chan Event

	// SendMessage delivers a text body or one attachment to a chat.
	SendMessage(ctx context.Context, chatID string, p Payload) error

	// AcceptInvite joins the group behind an invite code and returns the
	// joined group's platform identifier.
	AcceptInvite(ctx context.Context, code string) (string, error)

	// InviteInfo looks up an invite code without joining.
	InviteInfo(ctx context.Context, code string) (InviteInfo, error)

	// ChatByID loads chat metadata.
	ChatByID(ctx context.Context, id string) (Chat, error)

	// SelfID returns the account's own identifier once ready.
	SelfID() string

	// Close shuts the Connection down.
	Close(ctx context.Context) error
}

// Factory builds a Connection for an account key whose credentials live
// in credentialDir.
type Factory func(key, credentialDir string) (Connection, error)

// Payload is a single outbound message: either Text or an Attachment.
type Payload struct {
	Text       string
	Attachment *Attachment
}

// Attachment is media sent ahead of a message body.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
	Caption  string `json:"caption,omitempty"`
}

// InviteInfo is what the platform reveals about an invite before joining.
type InviteInfo struct {
	Subject     string
	Size        int
	Restrict    bool
	Description string
}

// Chat is chat metadata returned by ChatByID.
type Chat struct {
	ID           string
	Name         string
	IsGroup      bool
	Archived     bool
	Announce     bool // only admins may post
	Participants []Participant
}

// Participant is one member of a group chat.
type Participant struct {
	ID      string
	IsAdmin bool
}
