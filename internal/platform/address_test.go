package platform

import "testing"

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in, want, client string
	}{
		{"+1 (555) 000-1234", "+15550001234", "15550001234"},
		{"15550001234", "15550001234", "15550001234"},
		{"  +44 20 ", "+4420", "4420"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := ClientID(tt.in); got != tt.client {
			t.Errorf("ClientID(%q) = %q, want %q", tt.in, got, tt.client)
		}
	}
}

func TestChatIDs(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"group", GroupChatID, "120363", "120363@g.us"},
		{"group suffixed", GroupChatID, "120363@g.us", "120363@g.us"},
		{"number", NumberChatID, "+1 (555) 000-1234", "15550001234@c.us"},
		{"number strips suffix chars", NumberChatID, "555@c.us", "555@c.us"},
		{"contact", ContactChatID, "15550001234", "15550001234@c.us"},
		{"contact suffixed", ContactChatID, "15550001234@c.us", "15550001234@c.us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	if !IsGroupID("1@g.us") || IsGroupID("1@c.us") {
		t.Error("IsGroupID misclassified")
	}
}

func TestInviteMatcher_DefaultHost(t *testing.T) {
	m, err := NewInviteMatcher("")
	if err != nil {
		t.Fatalf("NewInviteMatcher: %v", err)
	}
	tests := []struct {
		link string
		want string
	}{
		{"https://chat.whatsapp.com/ABC123", "ABC123"},
		{"chat.whatsapp.com/Xy9z?ref=1", "Xy9z"},
		{"https://chat.whatsapp.com/", ""},
		{"https://example.com/ABC123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := m.Code(tt.link); got != tt.want {
			t.Errorf("Code(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestInviteMatcher_CustomHost(t *testing.T) {
	m, err := NewInviteMatcher("chat.example.com")
	if err != nil {
		t.Fatalf("NewInviteMatcher: %v", err)
	}
	if got := m.Code("https://chat.example.com/ABC123"); got != "ABC123" {
		t.Errorf("Code = %q, want ABC123", got)
	}
	// Dots in the host are literal.
	if got := m.Code("https://chatXexample.com/ABC123"); got != "" {
		t.Errorf("Code = %q, want empty", got)
	}
	if got := m.Code("https://chat.whatsapp.com/ABC123"); got != "" {
		t.Errorf("Code on other host = %q, want empty", got)
	}
}
