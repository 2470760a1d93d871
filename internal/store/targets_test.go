package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zulandar/groupyard/internal/models"
)

func seedTargets(t *testing.T, s *Store, targets ...models.Target) {
	t.Helper()
	if _, err := s.InsertTargets(targets); err != nil {
		t.Fatalf("InsertTargets: %v", err)
	}
}

func TestInsertTargets_IgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)

	n, err := s.InsertTargets([]models.Target{
		{Link: "https://chat.example.com/AAA", Country: "USA"},
		{Link: "https://chat.example.com/BBB", Country: "USA"},
		{Link: "https://chat.example.com/AAA", Country: "MEX"},
	})
	if err != nil {
		t.Fatalf("InsertTargets: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	n, err = s.InsertTargets([]models.Target{{Link: "https://chat.example.com/AAA"}})
	if err != nil {
		t.Fatalf("InsertTargets again: %v", err)
	}
	if n != 0 {
		t.Errorf("re-insert = %d, want 0", n)
	}

	st, _ := s.Stats()
	if st.Total != 2 {
		t.Errorf("total = %d, want 2", st.Total)
	}
	got, _ := s.GetTarget("https://chat.example.com/AAA")
	if got.Country != "USA" {
		t.Errorf("duplicate insert overwrote country: %q", got.Country)
	}
}

func TestInsertTargets_SameLinkTwiceAddsAtMostOne(t *testing.T) {
	s := openTestStore(t)
	links := []string{"https://chat.example.com/X1", "https://chat.example.com/X2", "https://chat.example.com/X1"}
	for _, l := range links {
		before, _ := s.Stats()
		if _, err := s.InsertTargets([]models.Target{{Link: l}, {Link: l}}); err != nil {
			t.Fatalf("InsertTargets: %v", err)
		}
		after, _ := s.Stats()
		if after.Total-before.Total > 1 {
			t.Errorf("inserting %s twice added %d rows", l, after.Total-before.Total)
		}
	}
}

func TestInsertTargets_SkipsBlankAndForcesPending(t *testing.T) {
	s := openTestStore(t)
	n, err := s.InsertTargets([]models.Target{
		{Link: "   "},
		{Link: " https://chat.example.com/TRIM ", Status: models.TargetSuccessful, Verified: true},
	})
	if err != nil {
		t.Fatalf("InsertTargets: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}
	got, err := s.GetTarget("https://chat.example.com/TRIM")
	if err != nil {
		t.Fatalf("GetTarget: %v", err)
	}
	if got.Status != models.TargetPending || got.Verified {
		t.Errorf("ingested target = status %q verified %v, want pending/unverified", got.Status, got.Verified)
	}
}

func TestGetTarget_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTarget("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPendingByCountry_OldestFirstAndLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		seedTargets(t, s, models.Target{Link: fmt.Sprintf("https://chat.example.com/U%d", i), Country: "USA"})
	}
	seedTargets(t, s, models.Target{Link: "https://chat.example.com/M0", Country: "MEX"})
	if _, err := s.MarkFailed("https://chat.example.com/U0", "expired"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, err := s.PendingByCountry("USA", 3)
	if err != nil {
		t.Fatalf("PendingByCountry: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"U1", "U2", "U3"} {
		if got[i].Link != "https://chat.example.com/"+want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Link, want)
		}
	}

	all, _ := s.PendingByCountry("", 0)
	if len(all) != 5 {
		t.Errorf("all pending = %d, want 5", len(all))
	}
}

func TestMarkSuccessful_TerminalIsSticky(t *testing.T) {
	s := openTestStore(t)
	link := "https://chat.example.com/S1"
	seedTargets(t, s, models.Target{Link: link})

	changed, err := s.MarkSuccessful(link, "120363@g.us")
	if err != nil || !changed {
		t.Fatalf("MarkSuccessful = %v, %v; want true, nil", changed, err)
	}
	first, _ := s.GetTarget(link)
	if first.JoinedAt == nil {
		t.Fatal("JoinedAt not set")
	}

	time.Sleep(5 * time.Millisecond)
	changed, err = s.MarkFailed(link, "late failure")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if changed {
		t.Error("MarkFailed on a successful target should be a no-op")
	}
	changed, _ = s.MarkSuccessful(link, "other-id")
	if changed {
		t.Error("second MarkSuccessful should be a no-op")
	}

	after, _ := s.GetTarget(link)
	if after.Status != models.TargetSuccessful {
		t.Errorf("status = %q, want successful", after.Status)
	}
	if after.PlatformTargetID != "120363@g.us" {
		t.Errorf("platform id = %q, want original", after.PlatformTargetID)
	}
	if after.ErrorMessage != "" {
		t.Errorf("error message = %q, want empty", after.ErrorMessage)
	}
	if !after.JoinedAt.Equal(*first.JoinedAt) {
		t.Errorf("JoinedAt changed from %v to %v", first.JoinedAt, after.JoinedAt)
	}
}

func TestMarkFailed_RecordsMessage(t *testing.T) {
	s := openTestStore(t)
	link := "https://chat.example.com/F1"
	seedTargets(t, s, models.Target{Link: link})

	if changed, err := s.MarkFailed(link, "invite revoked"); err != nil || !changed {
		t.Fatalf("MarkFailed = %v, %v", changed, err)
	}
	got, _ := s.GetTarget(link)
	if got.Status != models.TargetFailed || got.ErrorMessage != "invite revoked" {
		t.Errorf("got status %q msg %q", got.Status, got.ErrorMessage)
	}
	processed, err := s.IsProcessed(link)
	if err != nil || !processed {
		t.Errorf("IsProcessed = %v, %v; want true", processed, err)
	}
}

func TestMarkTerminal_UnknownLink(t *testing.T) {
	s := openTestStore(t)
	_, err := s.MarkSuccessful("https://chat.example.com/missing", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	processed, err := s.IsProcessed("https://chat.example.com/missing")
	if err != nil || processed {
		t.Errorf("IsProcessed(unknown) = %v, %v; want false, nil", processed, err)
	}
}

func TestMarkVerified_OnceAndPendingOnly(t *testing.T) {
	s := openTestStore(t)
	seedTargets(t, s,
		models.Target{Link: "https://chat.example.com/V1", Name: "old name"},
		models.Target{Link: "https://chat.example.com/V2"},
	)

	changed, err := s.MarkVerified("https://chat.example.com/V1", true, "Fresh Name")
	if err != nil || !changed {
		t.Fatalf("MarkVerified = %v, %v", changed, err)
	}
	got, _ := s.GetTarget("https://chat.example.com/V1")
	if !got.Verified || !got.RequiresApproval || got.Name != "Fresh Name" {
		t.Errorf("after verify: %+v", got)
	}

	changed, _ = s.MarkVerified("https://chat.example.com/V1", false, "Other")
	if changed {
		t.Error("second MarkVerified should be a no-op")
	}
	got, _ = s.GetTarget("https://chat.example.com/V1")
	if !got.RequiresApproval || got.Name != "Fresh Name" {
		t.Errorf("second verify changed the row: %+v", got)
	}

	s.MarkFailed("https://chat.example.com/V2", "expired")
	changed, _ = s.MarkVerified("https://chat.example.com/V2", false, "")
	if changed {
		t.Error("MarkVerified on a terminal target should be a no-op")
	}
}

func TestWorkingAndRequiresApproval(t *testing.T) {
	s := openTestStore(t)
	seedTargets(t, s,
		models.Target{Link: "https://chat.example.com/W1", Country: "USA"},
		models.Target{Link: "https://chat.example.com/W2", Country: "USA"},
		models.Target{Link: "https://chat.example.com/A1", Country: "USA"},
		models.Target{Link: "https://chat.example.com/N1", Country: "USA"},
		models.Target{Link: "https://chat.example.com/W3", Country: "MEX"},
	)
	s.MarkVerified("https://chat.example.com/W1", false, "")
	s.MarkVerified("https://chat.example.com/W2", false, "")
	s.MarkVerified("https://chat.example.com/A1", true, "")
	s.MarkVerified("https://chat.example.com/W3", false, "")
	s.MarkSuccessful("https://chat.example.com/W2", "g2")

	working, err := s.Working("USA", 0)
	if err != nil {
		t.Fatalf("Working: %v", err)
	}
	if len(working) != 1 || working[0].Link != "https://chat.example.com/W1" {
		t.Errorf("working = %+v, want only W1", working)
	}

	approval, err := s.RequiresApproval("", 0)
	if err != nil {
		t.Fatalf("RequiresApproval: %v", err)
	}
	if len(approval) != 1 || approval[0].Link != "https://chat.example.com/A1" {
		t.Errorf("approval = %+v, want only A1", approval)
	}

	unverified, _ := s.Unverified("USA", 0)
	if len(unverified) != 1 || unverified[0].Link != "https://chat.example.com/N1" {
		t.Errorf("unverified = %+v, want only N1", unverified)
	}

	allWorking, _ := s.Working("", 10)
	if len(allWorking) != 2 {
		t.Errorf("working across countries = %d, want 2", len(allWorking))
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)

	empty, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats on empty table: %v", err)
	}
	if empty != (TargetStats{}) {
		t.Errorf("empty stats = %+v", empty)
	}

	seedTargets(t, s,
		models.Target{Link: "l1", Country: "USA"},
		models.Target{Link: "l2", Country: "USA"},
		models.Target{Link: "l3", Country: "USA"},
		models.Target{Link: "l4", Country: "MEX"},
	)
	s.MarkSuccessful("l1", "g1")
	s.MarkFailed("l2", "boom")
	s.MarkFailed("l4", "boom")

	st, _ := s.Stats()
	want := TargetStats{Total: 4, Successful: 1, Failed: 2, Pending: 1}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}

	usa, _ := s.StatsByCountry("USA")
	want = TargetStats{Total: 3, Successful: 1, Failed: 1, Pending: 1}
	if usa != want {
		t.Errorf("StatsByCountry(USA) = %+v, want %+v", usa, want)
	}

	succ, _ := s.Successful()
	if len(succ) != 1 {
		t.Errorf("Successful = %d rows, want 1", len(succ))
	}
	failed, _ := s.Failed()
	if len(failed) != 2 {
		t.Errorf("Failed = %d rows, want 2", len(failed))
	}
}
