package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"example.com/points/internal/domain"
	"example.com/points/internal/ledger"
)

// fakeRemote mimics the Postgres store: per-identity activity rows, a scalar
// total, and the one-check-in-per-UTC-day uniqueness the schema enforces.
type fakeRemote struct {
	mu     sync.Mutex
	rows   map[string][]domain.Activity
	totals map[string]int

	listErr   error
	insertErr error
	countErr  error

	insertCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:   make(map[string][]domain.Activity),
		totals: make(map[string]int),
	}
}

func (r *fakeRemote) ListActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.Activity(nil), r.rows[userID]...), nil
}

func (r *fakeRemote) InsertActivities(ctx context.Context, userID string, activities []domain.Activity) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertErr != nil {
		return 0, r.insertErr
	}

	inserted := 0
	for _, a := range activities {
		if a.Kind == domain.KindDailyCheckin && r.hasCheckinOnDayLocked(userID, a.OccurredAt) {
			continue // unique index: ON CONFLICT DO NOTHING
		}
		r.rows[userID] = append(r.rows[userID], a)
		inserted++
	}
	return inserted, nil
}

func (r *fakeRemote) hasCheckinOnDayLocked(userID string, at time.Time) bool {
	day := at.UTC().Truncate(24 * time.Hour)
	for _, existing := range r.rows[userID] {
		if existing.Kind != domain.KindDailyCheckin {
			continue
		}
		if existing.OccurredAt.UTC().Truncate(24 * time.Hour).Equal(day) {
			return true
		}
	}
	return false
}

func (r *fakeRemote) CountActivities(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return len(r.rows[userID]), nil
}

func (r *fakeRemote) UpsertTotalPoints(ctx context.Context, userID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[userID] = total
	return nil
}

func (r *fakeRemote) count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[userID])
}

type fakeRetirer struct {
	mu     sync.Mutex
	clears int
	err    error
}

func (c *fakeRetirer) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.clears++
	return nil
}

func (c *fakeRetirer) cleared() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

func seedLedger(total int, activities ...domain.Activity) *ledger.Ledger {
	led := ledger.New()
	led.Load(total, activities)
	return led
}

func TestRunPassPushesLocalActivities(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	local := seedLedger(70,
		domain.Activity{ID: "l1", Kind: domain.KindCreateRecipe, Points: 50, Description: "Created recipe: pho", OccurredAt: at},
		domain.Activity{ID: "l2", Kind: domain.KindTryRecipe, Points: 20, Description: "Tried recipe: stew", OccurredAt: at.Add(time.Minute)},
	)
	remote := newFakeRemote()
	retirer := &fakeRetirer{}

	engine := NewEngine("user-1", local, retirer, remote, time.Minute, nil)
	if err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}

	if got := remote.count("user-1"); got != 2 {
		t.Fatalf("remote holds %d rows, want 2", got)
	}
	if remote.totals["user-1"] != 70 {
		t.Fatalf("remote total = %d, want 70", remote.totals["user-1"])
	}
	if retirer.cleared() != 1 {
		t.Fatalf("cache should be retired once the remote count is positive")
	}
	if engine.State() != StateIdle {
		t.Fatalf("engine should return to Idle, state=%d", engine.State())
	}
}

func TestRunPassIsIdempotent(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	local := seedLedger(50,
		domain.Activity{ID: "l1", Kind: domain.KindCreateRecipe, Points: 50, Description: "Created recipe: pho", OccurredAt: at},
	)
	remote := newFakeRemote()
	engine := NewEngine("user-1", local, &fakeRetirer{}, remote, time.Minute, nil)

	for i := 0; i < 3; i++ {
		if err := engine.RunPass(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	if got := remote.count("user-1"); got != 1 {
		t.Fatalf("repeated passes duplicated rows: %d", got)
	}
}

func TestPushSkipsFingerprintMatchesWithinSecond(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 100_000_000, time.UTC)

	remote := newFakeRemote()
	remote.rows["user-1"] = []domain.Activity{
		{ID: "42", Kind: domain.KindLikeRecipe, Points: 5, Description: "Liked recipe: soup", OccurredAt: at},
	}

	// Same event observed locally 300ms later in the same second: a dup.
	local := seedLedger(5,
		domain.Activity{ID: "l1", Kind: domain.KindLikeRecipe, Points: 5, Description: "Liked recipe: soup", OccurredAt: at.Add(300 * time.Millisecond)},
	)

	engine := NewEngine("user-1", local, &fakeRetirer{}, remote, time.Minute, nil)
	if err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}

	if got := remote.count("user-1"); got != 1 {
		t.Fatalf("sub-second duplicate was pushed: %d rows", got)
	}
}

func TestPushKeepsActivitiesAcrossSecondBoundary(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 900_000_000, time.UTC)

	remote := newFakeRemote()
	remote.rows["user-1"] = []domain.Activity{
		{ID: "42", Kind: domain.KindLikeRecipe, Points: 5, Description: "Liked recipe: soup", OccurredAt: at},
	}

	local := seedLedger(5,
		domain.Activity{ID: "l1", Kind: domain.KindLikeRecipe, Points: 5, Description: "Liked recipe: soup", OccurredAt: at.Add(1500 * time.Millisecond)},
	)

	engine := NewEngine("user-1", local, &fakeRetirer{}, remote, time.Minute, nil)
	if err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}

	if got := remote.count("user-1"); got != 2 {
		t.Fatalf("distinct activity across a second boundary was deduped: %d rows", got)
	}
}

func TestCacheNeverRetiredWhileRemoteEmpty(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	local := seedLedger(50,
		domain.Activity{ID: "l1", Kind: domain.KindCreateRecipe, Points: 50, OccurredAt: at},
	)

	remote := newFakeRemote()
	remote.insertErr = errors.New("connection reset")
	retirer := &fakeRetirer{}

	engine := NewEngine("user-1", local, retirer, remote, time.Minute, nil)
	if err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}

	// Insert failed so the remote holds nothing; the slot must stay.
	if retirer.cleared() != 0 {
		t.Fatalf("cache retired with a zero remote count")
	}

	// Next pass after the remote recovers retires the slot.
	remote.insertErr = nil
	if err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if retirer.cleared() != 1 {
		t.Fatalf("cache should retire once the remote confirms rows")
	}
}

func TestVerifyErrorFailsPassAndReturnsToIdle(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	local := seedLedger(50,
		domain.Activity{ID: "l1", Kind: domain.KindCreateRecipe, Points: 50, OccurredAt: at},
	)

	remote := newFakeRemote()
	remote.countErr = errors.New("timeout")
	retirer := &fakeRetirer{}

	engine := NewEngine("user-1", local, retirer, remote, time.Minute, nil)
	if err := engine.RunPass(context.Background()); err == nil {
		t.Fatalf("expected verify failure to surface")
	}
	if retirer.cleared() != 0 {
		t.Fatalf("cache must not retire on a failed verification")
	}
	if engine.State() != StateIdle {
		t.Fatalf("failed pass must return to Idle, state=%d", engine.State())
	}
}

func TestListFailureAbortsPass(t *testing.T) {
	local := seedLedger(0)
	remote := newFakeRemote()
	remote.listErr = errors.New("remote unavailable")

	engine := NewEngine("user-1", local, &fakeRetirer{}, remote, time.Minute, nil)
	if err := engine.RunPass(context.Background()); err == nil {
		t.Fatalf("expected pass failure when the remote list fails")
	}
	if remote.insertCalls != 0 {
		t.Fatalf("insert attempted without a remote snapshot")
	}
}

func TestTwoDevicesCheckinSameSecondYieldsOneRow(t *testing.T) {
	at := time.Date(2026, time.March, 4, 8, 0, 0, 100_000_000, time.UTC)
	remote := newFakeRemote()

	// Both devices recorded the user's daily check-in 200ms apart.
	deviceA := seedLedger(10,
		domain.Activity{ID: "a1", Kind: domain.KindDailyCheckin, Points: 10, Description: "Daily check-in", OccurredAt: at},
	)
	deviceB := seedLedger(10,
		domain.Activity{ID: "b1", Kind: domain.KindDailyCheckin, Points: 10, Description: "Daily check-in", OccurredAt: at.Add(200 * time.Millisecond)},
	)

	engineA := NewEngine("user-1", deviceA, &fakeRetirer{}, remote, time.Minute, nil)
	engineB := NewEngine("user-1", deviceB, &fakeRetirer{}, remote, time.Minute, nil)

	if err := engineA.RunPass(context.Background()); err != nil {
		t.Fatalf("device A pass: %v", err)
	}
	if err := engineB.RunPass(context.Background()); err != nil {
		t.Fatalf("device B pass: %v", err)
	}

	if got := remote.count("user-1"); got != 1 {
		t.Fatalf("two devices produced %d check-in rows, want 1", got)
	}
}

func TestBootstrapMergesRemoteAndLocal(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

	remote := newFakeRemote()
	remote.rows["user-1"] = []domain.Activity{
		{ID: "1", Kind: domain.KindCreateRecipe, Points: 50, Description: "Created recipe: pho", OccurredAt: at.Add(-time.Hour)},
		{ID: "2", Kind: domain.KindLikeRecipe, Points: 5, Description: "Liked recipe: soup", OccurredAt: at.Add(-30 * time.Minute)},
	}

	// One local activity is already remote (same fingerprint), one is not.
	local := seedLedger(25,
		domain.Activity{ID: "l1", Kind: domain.KindLikeRecipe, Points: 5, Description: "Liked recipe: soup", OccurredAt: at.Add(-30 * time.Minute)},
		domain.Activity{ID: "l2", Kind: domain.KindTryRecipe, Points: 20, Description: "Tried recipe: stew", OccurredAt: at},
	)

	engine := NewEngine("user-1", local, &fakeRetirer{}, remote, time.Minute, nil)
	if err := engine.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	history := local.History()
	if len(history) != 3 {
		t.Fatalf("merged history has %d entries, want 3", len(history))
	}
	if local.TotalPoints() != 75 {
		t.Fatalf("merged total = %d, want 75", local.TotalPoints())
	}

	// The unsynced local activity goes up on the next pass.
	if err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("post-bootstrap pass: %v", err)
	}
	if got := remote.count("user-1"); got != 3 {
		t.Fatalf("remote holds %d rows after bootstrap push, want 3", got)
	}
}

func TestBootstrapRemoteFailureLeavesLocalUntouched(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	local := seedLedger(20,
		domain.Activity{ID: "l1", Kind: domain.KindTryRecipe, Points: 20, OccurredAt: at},
	)

	remote := newFakeRemote()
	remote.listErr = errors.New("remote unavailable")

	engine := NewEngine("user-1", local, &fakeRetirer{}, remote, time.Minute, nil)
	if err := engine.Bootstrap(context.Background()); err == nil {
		t.Fatalf("expected bootstrap failure")
	}
	if local.TotalPoints() != 20 || len(local.History()) != 1 {
		t.Fatalf("failed bootstrap mutated local state")
	}
}

func TestStartLoopRunsTriggeredPass(t *testing.T) {
	at := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	local := seedLedger(50,
		domain.Activity{ID: "l1", Kind: domain.KindCreateRecipe, Points: 50, OccurredAt: at},
	)
	remote := newFakeRemote()

	engine := NewEngine("user-1", local, &fakeRetirer{}, remote, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Start(ctx)
	engine.Trigger()

	deadline := time.After(2 * time.Second)
	for remote.count("user-1") != 1 {
		select {
		case <-deadline:
			t.Fatalf("triggered pass never pushed the activity")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	engine.Wait()
}
