package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestText(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: KindReady, AccountKey: "+1555"}, "[+1555] ready"},
		{Event{Kind: KindAuthFailed, AccountKey: "+1555", Detail: "bad creds"}, "[+1555] auth_failed: bad creds"},
	}
	for _, tt := range tests {
		if got := Text(tt.ev); got != tt.want {
			t.Errorf("Text = %q, want %q", got, tt.want)
		}
	}
}

func TestSeverity(t *testing.T) {
	tests := map[Kind]string{
		KindReady:             "success",
		KindCampaignCompleted: "success",
		KindScanRequired:      "warning",
		KindDisconnected:      "error",
		Kind("other"):         "info",
	}
	for k, want := range tests {
		if got := severity(k); got != want {
			t.Errorf("severity(%q) = %q, want %q", k, got, want)
		}
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Log: zerolog.New(&buf).Level(zerolog.InfoLevel)}
	if err := n.Notify(context.Background(), Event{Kind: KindScanRequired, AccountKey: "+1", QR: "secret-qr"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"kind":"scan_required"`) || !strings.Contains(out, `"account":"+1"`) {
		t.Errorf("log output = %s", out)
	}
	if strings.Contains(out, "secret-qr") {
		t.Error("QR payload should only be logged at debug level")
	}
}

func TestMulti(t *testing.T) {
	var calls int
	ok := Func(func(ctx context.Context, ev Event) error { calls++; return nil })
	bad := Func(func(ctx context.Context, ev Event) error { calls++; return errors.New("down") })

	err := Multi{bad, nil, ok}.Notify(context.Background(), Event{Kind: KindReady})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("err = %v, want joined error", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if err := (Multi{ok}).Notify(context.Background(), Event{}); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
