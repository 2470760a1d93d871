// Package session owns the registry of live platform connections, one per
// account key, and tracks each connection's lifecycle state.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/notify"
	"github.com/zulandar/groupyard/internal/platform"
)

// ErrNoSession is returned when closing a key with no live session.
var ErrNoSession = errors.New("session: no such session")

// AccountRecorder persists whether an account has working credentials.
type AccountRecorder interface {
	SetHasSession(key string, hasSession bool) error
}

// Session is one account's connection plus its lifecycle state.
type Session struct {
	Key        string
	InstanceID string
	CreatedAt  time.Time

	conn   platform.Connection
	cancel context.CancelFunc
	done   chan struct{} // closed when the event loop exits
	closed chan struct{} // closed once Close has finished and the entry is gone

	closing bool // guarded by Manager.mu

	mu      sync.Mutex
	state   State
	qr      string
	reason  string
	changed chan struct{} // closed and replaced on every state change
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QR returns the latest scan payload while awaiting a credential scan.
func (s *Session) QR() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr
}

// Info is a snapshot of a session for listings.
type Info struct {
	Key        string    `json:"key"`
	InstanceID string    `json:"instance_id"`
	State      State     `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{Key: s.Key, InstanceID: s.InstanceID, State: s.state, Reason: s.reason, CreatedAt: s.CreatedAt}
}

// transition applies ev atomically and wakes waiters when the state moves.
func (s *Session) transition(ev platform.Event) (from, to State, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from = s.state
	to, ok = Transition(from, ev.Kind)
	if !ok {
		return from, to, false
	}
	s.state = to
	if to == StateAwaitingScan {
		s.qr = ev.QR
	} else {
		s.qr = ""
	}
	if ev.Reason != "" {
		s.reason = ev.Reason
	}
	close(s.changed)
	s.changed = make(chan struct{})
	return from, to, true
}

func (s *Session) watch() (State, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.changed
}

// Opts holds parameters for creating a Manager.
type Opts struct {
	Factory  platform.Factory
	Dir      string // credential root, one subdirectory per account
	Recorder AccountRecorder
	Notifier notify.Notifier
	Log      zerolog.Logger
}

// Manager is the registry of sessions. Callers never construct a
// Connection directly; they borrow one from ReadyConnection.
type Manager struct {
	factory  platform.Factory
	dir      string
	recorder AccountRecorder
	notifier notify.Notifier
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(opts Opts) (*Manager, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("session: manager: factory is required")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("session: manager: credential dir is required")
	}
	return &Manager{
		factory:  opts.Factory,
		dir:      opts.Dir,
		recorder: opts.Recorder,
		notifier: opts.Notifier,
		log:      opts.Log.With().Str("component", "session").Logger(),
		sessions: make(map[string]*Session),
	}, nil
}

// CredentialDir is where credentials for key are kept.
func (m *Manager) CredentialDir(key string) string {
	return filepath.Join(m.dir, platform.ClientID(key))
}

// GetOrCreate returns the session for key, creating and initializing a
// connection if none exists. An existing session is returned whatever its
// state. Initialization runs in the background; the returned session
// starts in StateInitializing.
func (m *Manager) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	key = platform.NormalizeKey(key)
	if key == "" {
		return nil, fmt.Errorf("session: account key is required")
	}

	m.mu.Lock()
	for {
		s, ok := m.sessions[key]
		if !ok {
			break
		}
		if !s.closing {
			m.mu.Unlock()
			return s, nil
		}
		// The previous connection still holds the credential dir.
		m.mu.Unlock()
		select {
		case <-s.closed:
		case <-ctx.Done():
			return nil, fmt.Errorf("session: %s is closing: %w", key, ctx.Err())
		}
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	conn, err := m.factory(key, m.CredentialDir(key))
	if err != nil {
		return nil, fmt.Errorf("session: create connection for %s: %w", key, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Key:        key,
		InstanceID: uuid.NewString(),
		CreatedAt:  time.Now(),
		conn:       conn,
		cancel:     cancel,
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
		state:      StateInitializing,
		changed:    make(chan struct{}),
	}
	m.sessions[key] = s

	go m.eventLoop(runCtx, s)
	go func() {
		if err := conn.Initialize(runCtx); err != nil && runCtx.Err() == nil {
			m.apply(runCtx, s, platform.Event{Kind: platform.EventAuthFailed, Reason: err.Error(), At: time.Now()})
		}
	}()

	m.log.Info().Str("account", key).Str("instance", s.InstanceID).Msg("session created")
	return s, nil
}

// eventLoop maps connection events onto state transitions until the
// event channel closes.
func (m *Manager) eventLoop(ctx context.Context, s *Session) {
	defer close(s.done)
	for ev := range s.conn.Events() {
		m.apply(ctx, s, ev)
	}
}

func (m *Manager) apply(ctx context.Context, s *Session, ev platform.Event) {
	from, to, ok := s.transition(ev)
	if !ok {
		m.log.Debug().Str("account", s.Key).Str("state", string(from)).
			Str("event", string(ev.Kind)).Msg("event ignored")
		return
	}
	m.log.Info().Str("account", s.Key).Str("from", string(from)).Str("to", string(to)).Msg("session state changed")

	if (to == StateAuthenticated || to == StateReady) && m.recorder != nil {
		if err := m.recorder.SetHasSession(s.Key, true); err != nil {
			m.log.Error().Err(err).Str("account", s.Key).Msg("record session")
		}
	}
	m.notify(ctx, s.Key, ev)
}

func (m *Manager) notify(ctx context.Context, key string, ev platform.Event) {
	if m.notifier == nil {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	err := m.notifier.Notify(ctx, notify.Event{
		Kind:       notify.Kind(ev.Kind),
		AccountKey: key,
		Detail:     ev.Reason,
		QR:         ev.QR,
		At:         at,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("account", key).Msg("notify failed")
	}
}

// HasStoredCredential reports whether credentials for key exist on disk.
func (m *Manager) HasStoredCredential(key string) bool {
	fi, err := os.Stat(m.CredentialDir(key))
	return err == nil && fi.IsDir()
}

// State returns the live session's state, StateStored when only
// credentials exist, or StateNotFound.
func (m *Manager) State(key string) State {
	key = platform.NormalizeKey(key)
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if ok {
		return s.State()
	}
	if m.HasStoredCredential(key) {
		return StateStored
	}
	return StateNotFound
}

// Session returns key's live session without creating one. Sessions
// being closed are not returned.
func (m *Manager) Session(key string) (*Session, bool) {
	key = platform.NormalizeKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok || s.closing {
		return nil, false
	}
	return s, true
}

// ReadyConnection returns key's connection only when it is ready.
func (m *Manager) ReadyConnection(key string) (platform.Connection, bool) {
	s, ok := m.Session(key)
	if !ok || s.State() != StateReady {
		return nil, false
	}
	return s.conn, true
}

// Await blocks until key's session reaches one of want, or a terminal
// state, or ctx ends. It returns the state reached.
func (m *Manager) Await(ctx context.Context, key string, want ...State) (State, error) {
	key = platform.NormalizeKey(key)
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return StateNotFound, ErrNoSession
	}
	for {
		st, changed := s.watch()
		for _, w := range want {
			if st == w {
				return st, nil
			}
		}
		if st.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-changed:
		}
	}
}

// Close shuts key's connection down and removes the session. The entry
// stays registered until the connection has closed, so GetOrCreate for
// the same key waits instead of opening a second connection.
func (m *Manager) Close(ctx context.Context, key string) error {
	key = platform.NormalizeKey(key)
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok || s.closing {
		m.mu.Unlock()
		return fmt.Errorf("session: close %s: %w", key, ErrNoSession)
	}
	s.closing = true
	m.mu.Unlock()
	return m.closeSession(ctx, s)
}

// closeSession requires s.closing to be set by the caller.
func (m *Manager) closeSession(ctx context.Context, s *Session) error {
	s.cancel()
	err := s.conn.Close(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}

	m.mu.Lock()
	if m.sessions[s.Key] == s {
		delete(m.sessions, s.Key)
	}
	m.mu.Unlock()
	close(s.closed)

	m.log.Info().Str("account", s.Key).Msg("session closed")
	if err != nil {
		return fmt.Errorf("session: close %s: %w", s.Key, err)
	}
	return nil
}

// CloseAll closes every session and returns the joined errors.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	var mine, others []*Session
	for _, s := range m.sessions {
		if s.closing {
			others = append(others, s)
			continue
		}
		s.closing = true
		mine = append(mine, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range mine {
		if err := m.closeSession(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range others {
		select {
		case <-s.closed:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("session: close %s: %w", s.Key, ctx.Err()))
		}
	}
	return errors.Join(errs...)
}

// List returns a snapshot of every live session, sorted by key.
func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
