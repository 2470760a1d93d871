package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockConnection implements Connection in memory. It is used by tests and
// by `gy serve --simulate`. Unknown invite codes are accepted and report a
// small open group so a simulated run completes end to end.
type MockConnection struct {
	mu     sync.Mutex
	events chan Event
	closed bool
	selfID string

	initEvents []Event
	initErr    error

	sent        []SentMessage
	sendErrs    map[string]error
	invites     map[string]inviteResult
	chats       map[string]Chat
	chatErrs    map[string]error
	acceptCalls int
	infoCalls   int
	panicAccept bool
}

type inviteResult struct {
	info      InviteInfo
	infoErr   error
	groupID   string
	acceptErr error
}

// SentMessage is one recorded SendMessage call.
type SentMessage struct {
	ChatID  string
	Payload Payload
	At      time.Time
}

// NewMockConnection returns a MockConnection whose Initialize reports
// authenticated then ready.
func NewMockConnection(selfID string) *MockConnection {
	return &MockConnection{
		events:   make(chan Event, 32),
		selfID:   selfID,
		sendErrs: make(map[string]error),
		invites:  make(map[string]inviteResult),
		chats:    make(map[string]Chat),
		chatErrs: make(map[string]error),
		initEvents: []Event{
			{Kind: EventAuthenticated},
			{Kind: EventReady},
		},
	}
}

// Initialize emits the scripted init events, or returns the configured
// error.
func (m *MockConnection) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("mock connection: closed")
	}
	if m.initErr != nil {
		err := m.initErr
		m.mu.Unlock()
		return err
	}
	evs := append([]Event(nil), m.initEvents...)
	m.mu.Unlock()

	for _, ev := range evs {
		m.Emit(ev)
	}
	return nil
}

// Events returns the lifecycle event channel.
func (m *MockConnection) Events() <-chan Event {
	return m.events
}

// SendMessage records the message, or fails with the error set for chatID.
func (m *MockConnection) SendMessage(ctx context.Context, chatID string, p Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock connection: closed")
	}
	if err, ok := m.sendErrs[chatID]; ok {
		return err
	}
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Payload: p, At: time.Now()})
	return nil
}

// AcceptInvite joins the group behind code.
func (m *MockConnection) AcceptInvite(ctx context.Context, code string) (string, error) {
	m.mu.Lock()
	m.acceptCalls++
	panicking := m.panicAccept
	r, ok := m.invites[code]
	m.mu.Unlock()

	if panicking {
		panic("mock connection: accept invite")
	}
	if !ok {
		return code + groupSuffix, nil
	}
	if r.acceptErr != nil {
		return "", r.acceptErr
	}
	return r.groupID, nil
}

// InviteInfo returns the configured info for code.
func (m *MockConnection) InviteInfo(ctx context.Context, code string) (InviteInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoCalls++
	r, ok := m.invites[code]
	if !ok {
		return InviteInfo{Subject: code, Size: 10}, nil
	}
	if r.infoErr != nil {
		return InviteInfo{}, r.infoErr
	}
	return r.info, nil
}

// ChatByID returns the configured chat, or a not found error.
func (m *MockConnection) ChatByID(ctx context.Context, id string) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.chatErrs[id]; ok {
		return Chat{}, err
	}
	c, ok := m.chats[id]
	if !ok {
		return Chat{}, fmt.Errorf("chat %s not found", id)
	}
	return c, nil
}

// SelfID returns the configured self identifier.
func (m *MockConnection) SelfID() string {
	return m.selfID
}

// Close closes the event channel. Closing twice is a no-op.
func (m *MockConnection) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

// --- Test helpers ---

// Emit pushes an event as if it came from the platform. It is dropped
// once the connection is closed.
func (m *MockConnection) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
}

// SetInitEvents replaces the events Initialize emits.
func (m *MockConnection) SetInitEvents(evs ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initEvents = evs
}

// SetInitError makes Initialize fail.
func (m *MockConnection) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetInvite configures InviteInfo and AcceptInvite for code.
func (m *MockConnection) SetInvite(code string, info InviteInfo, groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[code] = inviteResult{info: info, groupID: groupID}
}

// SetInviteError makes both InviteInfo and AcceptInvite fail for code.
func (m *MockConnection) SetInviteError(code string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[code] = inviteResult{infoErr: err, acceptErr: err}
}

// SetSendError makes SendMessage to chatID fail.
func (m *MockConnection) SetSendError(chatID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErrs[chatID] = err
}

// SetChat configures ChatByID for c.ID.
func (m *MockConnection) SetChat(c Chat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[c.ID] = c
}

// SetChatError makes ChatByID fail for id.
func (m *MockConnection) SetChatError(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatErrs[id] = err
}

// PanicOnAccept makes AcceptInvite panic.
func (m *MockConnection) PanicOnAccept(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicAccept = v
}

// Sent returns a copy of all recorded messages.
func (m *MockConnection) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// AcceptCalls returns how many times AcceptInvite was called.
func (m *MockConnection) AcceptCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acceptCalls
}

// InfoCalls returns how many times InviteInfo was called.
func (m *MockConnection) InfoCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoCalls
}

// Closed reports whether Close was called.
func (m *MockConnection) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockFactory hands out MockConnections and remembers them by key.
type MockFactory struct {
	mu    sync.Mutex
	conns map[string]*MockConnection
	dirs  map[string]string
	built int
	// Prepare, when set, configures each new connection before it is returned.
	Prepare func(key string, c *MockConnection)
}

// NewMockFactory creates an empty MockFactory.
func NewMockFactory() *MockFactory {
	return &MockFactory{
		conns: make(map[string]*MockConnection),
		dirs:  make(map[string]string),
	}
}

// Factory returns a Factory backed by f.
func (f *MockFactory) Factory() Factory {
	return func(key, credentialDir string) (Connection, error) {
		c := NewMockConnection(ClientID(key) + contactSuffix)
		if f.Prepare != nil {
			f.Prepare(key, c)
		}
		f.mu.Lock()
		f.conns[key] = c
		f.dirs[key] = credentialDir
		f.built++
		f.mu.Unlock()
		return c, nil
	}
}

// Get returns the most recent connection built for key.
func (f *MockFactory) Get(key string) *MockConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[key]
}

// Dir returns the credential directory passed for key.
func (f *MockFactory) Dir(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[key]
}

// Built returns how many connections have been built.
func (f *MockFactory) Built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}
