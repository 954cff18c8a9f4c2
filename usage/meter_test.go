package usage

import (
	"sync"
	"testing"
	"time"
)

func testMeter(t *testing.T, limit int, opts ...MeterOption) *Meter {
	t.Helper()
	return NewMeter(NewMemoryStore(), limit, opts...)
}

func mustRemaining(t *testing.T, m *Meter) int {
	t.Helper()
	n, err := m.RemainingFreeCount()
	if err != nil {
		t.Fatalf("RemainingFreeCount: %v", err)
	}
	return n
}

func TestMeter_ReserveCommitCycleExhaustsQuota(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 3)
	for i := 0; i < 3; i++ {
		if err := m.Reserve(); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if err := m.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	if got := mustRemaining(t, m); got != 0 {
		t.Fatalf("remaining=%d, want 0", got)
	}
	ok, err := m.CanStartJob()
	if err != nil {
		t.Fatalf("CanStartJob: %v", err)
	}
	if ok {
		t.Fatal("CanStartJob=true at the limit, want false")
	}
}

func TestMeter_RollbackRestoresRemaining(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 3)
	before := mustRemaining(t, m)
	if err := m.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := mustRemaining(t, m); got != before-1 {
		t.Fatalf("remaining after reserve=%d, want %d", got, before-1)
	}
	if err := m.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := mustRemaining(t, m); got != before {
		t.Fatalf("remaining after rollback=%d, want %d", got, before)
	}
}

func TestMeter_ReserveBlocksConcurrentOverrun(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 1)
	if err := m.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	ok, err := m.CanStartJob()
	if err != nil {
		t.Fatalf("CanStartJob: %v", err)
	}
	if ok {
		t.Fatal("reservation should block a second job before commit")
	}
}

func TestMeter_LazyDailyReset(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 27, 23, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	m := testMeter(t, 3, WithClock(clock))

	if err := m.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := mustRemaining(t, m); got != 1 {
		t.Fatalf("remaining=%d, want 1", got)
	}

	// Two hours later it is the next calendar day; both counters zero
	// regardless of outstanding reservations.
	now = now.Add(2 * time.Hour)
	if got := mustRemaining(t, m); got != 3 {
		t.Fatalf("remaining after day rollover=%d, want 3", got)
	}
	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Consumed != 0 || snap.Reserved != 0 {
		t.Fatalf("counters=%+v, want both zero after reset", snap)
	}
}

func TestMeter_SameDayDoesNotReset(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 27, 8, 0, 0, 0, time.Local)
	m := testMeter(t, 3, WithClock(func() time.Time { return now }))
	if err := m.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	now = now.Add(10 * time.Hour)
	if got := mustRemaining(t, m); got != 2 {
		t.Fatalf("remaining=%d, want 2 (same day, no reset)", got)
	}
}

func TestMeter_UnlimitedNeverCounts(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 3, Unlimited())
	for i := 0; i < 10; i++ {
		if err := m.Reserve(); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if err := m.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	ok, err := m.CanStartJob()
	if err != nil {
		t.Fatalf("CanStartJob: %v", err)
	}
	if !ok {
		t.Fatal("unlimited meter should always admit")
	}
}

func TestMeter_ConcurrentMutationsStayClamped(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 5)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Reserve()
			_ = m.Commit()
		}()
	}
	wg.Wait()

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Consumed > 5 || snap.Reserved < 0 {
		t.Fatalf("counters escaped their clamps: %+v", snap)
	}
}

func TestRunGuard_CommitAtMostOnce(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 3)
	g, err := StartRun(m)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := g.CommitOnce(); err != nil {
		t.Fatalf("CommitOnce: %v", err)
	}
	if err := g.CommitOnce(); err != nil {
		t.Fatalf("second CommitOnce: %v", err)
	}
	if err := g.RollbackIfUncommitted(); err != nil {
		t.Fatalf("RollbackIfUncommitted: %v", err)
	}

	if got := mustRemaining(t, m); got != 2 {
		t.Fatalf("remaining=%d, want 2 (exactly one unit charged)", got)
	}
}

func TestRunGuard_RollbackThenCommitIsNoop(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 3)
	g, err := StartRun(m)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := g.RollbackIfUncommitted(); err != nil {
		t.Fatalf("RollbackIfUncommitted: %v", err)
	}
	if err := g.RollbackIfUncommitted(); err != nil {
		t.Fatalf("second RollbackIfUncommitted: %v", err)
	}
	if err := g.CommitOnce(); err != nil {
		t.Fatalf("CommitOnce after rollback: %v", err)
	}
	if g.Committed() {
		t.Fatal("commit after rollback must not charge")
	}
	if got := mustRemaining(t, m); got != 3 {
		t.Fatalf("remaining=%d, want 3 (nothing charged)", got)
	}
}

func TestStartRun_QuotaExhausted(t *testing.T) {
	t.Parallel()

	m := testMeter(t, 1)
	g, err := StartRun(m)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := StartRun(m); err != ErrQuotaExhausted {
		t.Fatalf("second StartRun err=%v, want ErrQuotaExhausted", err)
	}
	_ = g.RollbackIfUncommitted()
	if _, err := StartRun(m); err != nil {
		t.Fatalf("StartRun after rollback: %v", err)
	}
}
