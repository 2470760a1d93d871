// Package notify forwards session and campaign events to operators. All
// notifiers are best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Kind names an operator-facing event.
type Kind string

const (
	KindScanRequired      Kind = "scan_required"
	KindAuthenticated     Kind = "authenticated"
	KindReady             Kind = "ready"
	KindAuthFailed        Kind = "auth_failed"
	KindDisconnected      Kind = "disconnected"
	KindCampaignCompleted Kind = "campaign_completed"
	KindCampaignFailed    Kind = "campaign_failed"
)

// Event is one notification.
type Event struct {
	Kind       Kind      `json:"kind"`
	AccountKey string    `json:"account"`
	Detail     string    `json:"detail,omitempty"`
	QR         string    `json:"qr,omitempty"` // credential scan payload, only for KindScanRequired
	At         time.Time `json:"at"`
}

// Notifier delivers events somewhere a human will see them.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, ev Event) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Text renders an event as a single line.
func Text(ev Event) string {
	s := fmt.Sprintf("[%s] %s", ev.AccountKey, ev.Kind)
	if ev.Detail != "" {
		s += ": " + ev.Detail
	}
	return s
}

// severity maps an event kind to info, success, warning or error.
func severity(k Kind) string {
	switch k {
	case KindReady, KindAuthenticated, KindCampaignCompleted:
		return "success"
	case KindScanRequired:
		return "warning"
	case KindAuthFailed, KindDisconnected, KindCampaignFailed:
		return "error"
	default:
		return "info"
	}
}

// LogNotifier writes events to a zerolog logger.
type LogNotifier struct {
	Log zerolog.Logger
}

// Notify logs ev. The QR payload is logged at debug level only.
func (n LogNotifier) Notify(ctx context.Context, ev Event) error {
	e := n.Log.Info()
	if severity(ev.Kind) == "error" {
		e = n.Log.Warn()
	}
	e.Str("kind", string(ev.Kind)).
		Str("account", ev.AccountKey).
		Str("detail", ev.Detail).
		Msg("session event")
	if ev.QR != "" {
		n.Log.Debug().Str("account", ev.AccountKey).Str("qr", ev.QR).Msg("scan payload")
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers ev to every notifier, even after a failure.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
