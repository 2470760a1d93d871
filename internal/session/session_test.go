package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/notify"
	"github.com/zulandar/groupyard/internal/platform"
)

type fakeRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *fakeRecorder) SetHasSession(key string, has bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if has {
		r.keys = append(r.keys, key)
	}
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Notify(ctx context.Context, ev notify.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) kinds() []notify.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]notify.Kind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type fixture struct {
	mgr      *Manager
	factory  *platform.MockFactory
	recorder *fakeRecorder
	events   *eventLog
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		factory:  platform.NewMockFactory(),
		recorder: &fakeRecorder{},
		events:   &eventLog{},
		dir:      t.TempDir(),
	}
	mgr, err := NewManager(Opts{
		Factory:  f.factory.Factory(),
		Dir:      f.dir,
		Recorder: f.recorder,
		Notifier: f.events,
		Log:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.mgr = mgr
	t.Cleanup(func() { mgr.CloseAll(context.Background()) })
	return f
}

func awaitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(Opts{Dir: "x"}); err == nil {
		t.Error("expected error for missing factory")
	}
	if _, err := NewManager(Opts{Factory: platform.NewMockFactory().Factory()}); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestGetOrCreate_ReachesReady(t *testing.T) {
	f := newFixture(t)
	ctx := awaitCtx(t)

	s, err := f.mgr.GetOrCreate(ctx, "+1 (555) 0001")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.Key != "+15550001" {
		t.Errorf("Key = %q, want normalized", s.Key)
	}
	if s.InstanceID == "" {
		t.Error("InstanceID not set")
	}
	if f.factory.Dir("+15550001") != filepath.Join(f.dir, "15550001") {
		t.Errorf("credential dir = %q", f.factory.Dir("+15550001"))
	}

	st, err := f.mgr.Await(ctx, "+15550001", StateReady)
	if err != nil || st != StateReady {
		t.Fatalf("Await = %q, %v", st, err)
	}
	conn, ok := f.mgr.ReadyConnection("+15550001")
	if !ok || conn == nil {
		t.Fatal("ReadyConnection should return the connection")
	}
	eventually(t, func() bool { return len(f.events.kinds()) == 2 })
	kinds := f.events.kinds()
	if kinds[0] != notify.KindAuthenticated || kinds[1] != notify.KindReady {
		t.Errorf("notified = %v", kinds)
	}
	if f.recorder.count() != 2 {
		t.Errorf("SetHasSession calls = %d, want 2", f.recorder.count())
	}
}

func TestGetOrCreate_OnePerKey(t *testing.T) {
	f := newFixture(t)
	ctx := awaitCtx(t)

	var wg sync.WaitGroup
	sessions := make([]*Session, 10)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.mgr.GetOrCreate(ctx, "+1555")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	if f.factory.Built() != 1 {
		t.Errorf("connections built = %d, want 1", f.factory.Built())
	}
	for _, s := range sessions[1:] {
		if s != sessions[0] {
			t.Fatal("GetOrCreate returned different sessions for one key")
		}
	}
	if n := len(f.mgr.List()); n != 1 {
		t.Errorf("List = %d sessions, want 1", n)
	}
}

func TestGetOrCreate_EmptyKey(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.GetOrCreate(context.Background(), "abc"); err == nil {
		t.Fatal("expected error for key without digits")
	}
}

func TestScanFlow(t *testing.T) {
	f := newFixture(t)
	f.factory.Prepare = func(key string, c *platform.MockConnection) {
		c.SetInitEvents(platform.Event{Kind: platform.EventScanRequired, QR: "qr-1"})
	}
	ctx := awaitCtx(t)

	s, _ := f.mgr.GetOrCreate(ctx, "+1555")
	st, err := f.mgr.Await(ctx, "+1555", StateAwaitingScan)
	if err != nil || st != StateAwaitingScan {
		t.Fatalf("Await = %q, %v", st, err)
	}
	if s.QR() != "qr-1" {
		t.Errorf("QR = %q, want qr-1", s.QR())
	}
	if _, ok := f.mgr.ReadyConnection("+1555"); ok {
		t.Error("ReadyConnection should be unavailable while awaiting scan")
	}

	conn := f.factory.Get("+1555")
	conn.Emit(platform.Event{Kind: platform.EventAuthenticated})
	conn.Emit(platform.Event{Kind: platform.EventReady})
	if st, _ := f.mgr.Await(ctx, "+1555", StateReady); st != StateReady {
		t.Fatalf("state = %q, want ready", st)
	}
	if s.QR() != "" {
		t.Error("QR should clear once past the scan")
	}

	// Out-of-order events are ignored.
	conn.Emit(platform.Event{Kind: platform.EventScanRequired, QR: "late"})
	conn.Emit(platform.Event{Kind: platform.EventDisconnected, Reason: "phone offline"})
	if st, _ := f.mgr.Await(ctx, "+1555", StateDisconnected); st != StateDisconnected {
		t.Fatalf("state = %q, want disconnected", st)
	}
	if info := f.mgr.List()[0]; info.Reason != "phone offline" {
		t.Errorf("Reason = %q", info.Reason)
	}

	// A disconnected session is still returned, never silently replaced.
	again, _ := f.mgr.GetOrCreate(ctx, "+1555")
	if again != s || f.factory.Built() != 1 {
		t.Error("GetOrCreate should return the existing session")
	}
}

func TestInitializeError(t *testing.T) {
	f := newFixture(t)
	f.factory.Prepare = func(key string, c *platform.MockConnection) {
		c.SetInitError(errors.New("credentials rejected"))
	}
	ctx := awaitCtx(t)

	f.mgr.GetOrCreate(ctx, "+1555")
	st, err := f.mgr.Await(ctx, "+1555", StateReady)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if st != StateAuthFailed {
		t.Errorf("state = %q, want auth_failed", st)
	}
	if f.recorder.count() != 0 {
		t.Error("failed auth must not record a session")
	}
}

func TestStateAndStoredCredential(t *testing.T) {
	f := newFixture(t)
	if got := f.mgr.State("+1555"); got != StateNotFound {
		t.Errorf("State = %q, want not_found", got)
	}
	if err := os.MkdirAll(filepath.Join(f.dir, "1555"), 0o700); err != nil {
		t.Fatal(err)
	}
	if !f.mgr.HasStoredCredential("+1555") {
		t.Error("HasStoredCredential = false, want true")
	}
	if got := f.mgr.State("+1555"); got != StateStored {
		t.Errorf("State = %q, want stored", got)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ctx := awaitCtx(t)
	f.mgr.GetOrCreate(ctx, "+1555")
	f.mgr.Await(ctx, "+1555", StateReady)

	if err := f.mgr.Close(ctx, "+1555"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.factory.Get("+1555").Closed() {
		t.Error("connection not closed")
	}
	if got := f.mgr.State("+1555"); got != StateNotFound {
		t.Errorf("State after close = %q", got)
	}
	if err := f.mgr.Close(ctx, "+1555"); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Close err = %v, want ErrNoSession", err)
	}

	// A new session can be created after close.
	f.mgr.GetOrCreate(ctx, "+1555")
	if f.factory.Built() != 2 {
		t.Errorf("built = %d, want 2", f.factory.Built())
	}
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t)
	ctx := awaitCtx(t)
	for _, k := range []string{"+1", "+2", "+3"} {
		f.mgr.GetOrCreate(ctx, k)
	}
	if err := f.mgr.CloseAll(ctx); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if n := len(f.mgr.List()); n != 0 {
		t.Errorf("List after CloseAll = %d", n)
	}
	for _, k := range []string{"+1", "+2", "+3"} {
		if !f.factory.Get(k).Closed() {
			t.Errorf("%s not closed", k)
		}
	}
}

func TestAwait_NoSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.Await(context.Background(), "+9", StateReady); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

// slowClose holds Close until release is closed.
type slowClose struct {
	*platform.MockConnection
	entered chan struct{}
	release chan struct{}
	onClose func()
}

func (c *slowClose) Close(ctx context.Context) error {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.release
	c.onClose()
	return c.MockConnection.Close(ctx)
}

type liveCount struct {
	mu   sync.Mutex
	live int
	peak int
}

func (l *liveCount) add(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.live += n
	if l.live > l.peak {
		l.peak = l.live
	}
}

func (l *liveCount) get() (live, peak int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live, l.peak
}

func TestClose_GetOrCreateWaitsForOldConnection(t *testing.T) {
	counts := &liveCount{}
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	factory := func(key, dir string) (platform.Connection, error) {
		counts.add(1)
		return &slowClose{
			MockConnection: platform.NewMockConnection(platform.ClientID(key) + "@c.us"),
			entered:        entered,
			release:        release,
			onClose:        func() { counts.add(-1) },
		}, nil
	}
	mgr, err := NewManager(Opts{Factory: factory, Dir: t.TempDir(), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := awaitCtx(t)

	first, err := mgr.GetOrCreate(ctx, "+1555")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if st, _ := mgr.Await(ctx, "+1555", StateReady); st != StateReady {
		t.Fatalf("state = %q, want ready", st)
	}

	closeErr := make(chan error, 1)
	go func() { closeErr <- mgr.Close(ctx, "+1555") }()
	<-entered

	if _, ok := mgr.Session("+1555"); ok {
		t.Error("Session should not return a closing session")
	}
	if _, ok := mgr.ReadyConnection("+1555"); ok {
		t.Error("ReadyConnection should not return a closing session")
	}

	created := make(chan *Session, 1)
	go func() {
		s, err := mgr.GetOrCreate(ctx, "+1555")
		if err != nil {
			t.Errorf("GetOrCreate during close: %v", err)
		}
		created <- s
	}()

	select {
	case <-created:
		t.Fatal("GetOrCreate returned while the old connection was still closing")
	case <-time.After(50 * time.Millisecond):
	}
	if live, _ := counts.get(); live != 1 {
		t.Fatalf("live connections during close = %d, want 1", live)
	}

	close(release)
	if err := <-closeErr; err != nil {
		t.Fatalf("Close: %v", err)
	}
	second := <-created
	if second == nil || second == first {
		t.Fatal("expected a fresh session after close")
	}
	if _, peak := counts.get(); peak != 1 {
		t.Errorf("peak live connections = %d, want 1", peak)
	}
	if err := mgr.CloseAll(ctx); err != nil {
		t.Errorf("CloseAll: %v", err)
	}
}

func TestGetOrCreate_ClosingSessionHonoursContext(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	factory := func(key, dir string) (platform.Connection, error) {
		return &slowClose{
			MockConnection: platform.NewMockConnection("me@c.us"),
			entered:        entered,
			release:        release,
			onClose:        func() {},
		}, nil
	}
	mgr, _ := NewManager(Opts{Factory: factory, Dir: t.TempDir(), Log: zerolog.Nop()})
	ctx := awaitCtx(t)
	mgr.GetOrCreate(ctx, "+1555")

	done := make(chan struct{})
	go func() {
		mgr.Close(ctx, "+1555")
		close(done)
	}()
	<-entered

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := mgr.GetOrCreate(short, "+1555"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if err := mgr.Close(ctx, "+1555"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Close while closing err = %v, want ErrNoSession", err)
	}
	close(release)
	<-done
}

func TestSession_Lookup(t *testing.T) {
	f := newFixture(t)
	ctx := awaitCtx(t)
	if _, ok := f.mgr.Session("+1555"); ok {
		t.Fatal("Session should not find an unknown key")
	}
	created, _ := f.mgr.GetOrCreate(ctx, "+1555")
	s, ok := f.mgr.Session("+1 555")
	if !ok || s != created {
		t.Fatal("Session should return the live session by normalized key")
	}
	if f.factory.Built() != 1 {
		t.Errorf("built = %d, want 1", f.factory.Built())
	}
}
