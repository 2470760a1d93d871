package session

import (
	"testing"

	"github.com/zulandar/groupyard/internal/platform"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		ev   platform.EventKind
		want State
		ok   bool
	}{
		{StateInitializing, platform.EventScanRequired, StateAwaitingScan, true},
		{StateAwaitingScan, platform.EventScanRequired, StateAwaitingScan, true},
		{StateInitializing, platform.EventAuthenticated, StateAuthenticated, true},
		{StateAwaitingScan, platform.EventAuthenticated, StateAuthenticated, true},
		{StateInitializing, platform.EventReady, StateReady, true},
		{StateAuthenticated, platform.EventReady, StateReady, true},
		{StateAwaitingScan, platform.EventAuthFailed, StateAuthFailed, true},
		{StateInitializing, platform.EventAuthFailed, StateAuthFailed, true},
		{StateReady, platform.EventDisconnected, StateDisconnected, true},
		{StateAuthenticated, platform.EventDisconnected, StateDisconnected, true},

		{StateReady, platform.EventScanRequired, StateReady, false},
		{StateReady, platform.EventAuthFailed, StateReady, false},
		{StateAuthFailed, platform.EventReady, StateAuthFailed, false},
		{StateDisconnected, platform.EventReady, StateDisconnected, false},
		{StateInitializing, platform.EventDisconnected, StateInitializing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, ok := Transition(tt.from, tt.ev)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Transition(%q, %q) = %q, %v; want %q, %v", tt.from, tt.ev, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateAuthFailed, StateDisconnected} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []State{StateInitializing, StateAwaitingScan, StateAuthenticated, StateReady} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}
