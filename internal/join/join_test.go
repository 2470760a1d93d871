package join

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openJoinTestStore(t *testing.T) *store.Store {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gormDB.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, _ := store.New(gormDB)
	return s
}

type recordingSleeper struct {
	calls []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func newTestOrchestrator(t *testing.T, st *store.Store, sl *recordingSleeper) *Orchestrator {
	t.Helper()
	o, err := New(Opts{Store: st, Sleep: sl.sleep, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func link(code string) models.Target {
	return models.Target{Link: "https://chat.whatsapp.com/" + code}
}

func TestJoin_SecondCallIsAlreadyProcessed(t *testing.T) {
	for _, fail := range []bool{false, true} {
		st := openJoinTestStore(t)
		o := newTestOrchestrator(t, st, &recordingSleeper{})
		conn := platform.NewMockConnection("me")
		if fail {
			conn.SetInviteError("ABC", errors.New("invite expired"))
		}
		ctx := context.Background()

		first := o.Join(ctx, conn, link("ABC"))
		if first.Outcome == AlreadyProcessed || !first.Recorded {
			t.Fatalf("first = %+v", first)
		}
		second := o.Join(ctx, conn, link("ABC"))
		if second.Outcome != AlreadyProcessed {
			t.Errorf("second outcome = %q, want already_processed", second.Outcome)
		}
		if conn.AcceptCalls() != 1 {
			t.Errorf("AcceptCalls = %d, want 1", conn.AcceptCalls())
		}
	}
}

func TestJoin_RecordsOutcome(t *testing.T) {
	st := openJoinTestStore(t)
	o := newTestOrchestrator(t, st, &recordingSleeper{})
	conn := platform.NewMockConnection("me")
	conn.SetInvite("OK", platform.InviteInfo{}, "123@g.us")
	conn.SetInviteError("BAD", errors.New("not authorized"))
	ctx := context.Background()

	res := o.Join(ctx, conn, link("OK"))
	if res.Outcome != Joined || res.GroupID != "123@g.us" {
		t.Errorf("res = %+v", res)
	}
	got, _ := st.GetTarget(link("OK").Link)
	if got.Status != models.TargetSuccessful || got.PlatformTargetID != "123@g.us" || got.JoinedAt == nil {
		t.Errorf("stored = %+v", got)
	}

	res = o.Join(ctx, conn, link("BAD"))
	if res.Outcome != Failed || res.Error != "not authorized" {
		t.Errorf("res = %+v", res)
	}
	got, _ = st.GetTarget(link("BAD").Link)
	if got.Status != models.TargetFailed || got.ErrorMessage != "not authorized" {
		t.Errorf("stored = %+v", got)
	}
}

func TestJoin_InvalidLink(t *testing.T) {
	st := openJoinTestStore(t)
	o := newTestOrchestrator(t, st, &recordingSleeper{})
	conn := platform.NewMockConnection("me")

	res := o.Join(context.Background(), conn, models.Target{Link: "https://example.com/x"})
	if res.Outcome != Failed || res.Error != "invalid invite link" {
		t.Errorf("res = %+v", res)
	}
	if conn.AcceptCalls() != 0 {
		t.Error("invalid link must not reach the connection")
	}
}

func TestJoin_RecoversPanic(t *testing.T) {
	st := openJoinTestStore(t)
	o := newTestOrchestrator(t, st, &recordingSleeper{})
	conn := platform.NewMockConnection("me")
	conn.PanicOnAccept(true)

	res := o.Join(context.Background(), conn, link("BOOM"))
	if res.Outcome != Failed || !res.Recorded {
		t.Errorf("res = %+v, want recorded failure", res)
	}
	got, _ := st.GetTarget(link("BOOM").Link)
	if got.Status != models.TargetFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestJoinBatch_DelayOnlyAfterSuccess(t *testing.T) {
	st := openJoinTestStore(t)
	sl := &recordingSleeper{}
	o := newTestOrchestrator(t, st, sl)
	conn := platform.NewMockConnection("me")
	conn.SetInviteError("F1", errors.New("full"))

	targets := []models.Target{link("A"), link("F1"), link("B"), link("C")}
	results := o.JoinBatch(context.Background(), conn, targets, 10*time.Minute)

	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	want := []Outcome{Joined, Failed, Joined, Joined}
	for i, r := range results {
		if r.Outcome != want[i] {
			t.Errorf("results[%d] = %q, want %q", i, r.Outcome, want[i])
		}
		if r.Link != targets[i].Link {
			t.Errorf("results[%d] out of order", i)
		}
	}
	// A and B wait; F1 failed and C is last.
	if len(sl.calls) != 2 {
		t.Fatalf("sleeps = %v, want 2", sl.calls)
	}
	for _, d := range sl.calls {
		if d != 10*time.Minute {
			t.Errorf("sleep = %v, want 10m", d)
		}
	}
}

func TestJoinBatch_StopsOnCancel(t *testing.T) {
	st := openJoinTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	o, _ := New(Opts{Store: st, Log: zerolog.Nop(), Sleep: func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}})
	conn := platform.NewMockConnection("me")

	results := o.JoinBatch(ctx, conn, []models.Target{link("A"), link("B")}, time.Second)
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
	got, _ := st.GetTarget(link("B").Link)
	if got != nil {
		t.Error("B should never have been touched")
	}
}

func TestSleep_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected ctx error")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
}
