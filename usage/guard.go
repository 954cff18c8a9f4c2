package usage

import "sync"

// RunGuard reconciles one analysis run against the meter with at-most-once
// semantics: a run commits once at most, never after a rollback, and never
// rolls back twice.
type RunGuard struct {
	mu         sync.Mutex
	meter      *Meter
	committed  bool
	rolledBack bool
}

// StartRun checks the quota and reserves one slot. Returns
// ErrQuotaExhausted when the daily limit is reached.
func StartRun(m *Meter) (*RunGuard, error) {
	ok, err := m.CanStartJob()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExhausted
	}
	if err := m.Reserve(); err != nil {
		return nil, err
	}
	return &RunGuard{meter: m}, nil
}

// CommitOnce charges the run on its first successful stage. Later calls, and
// calls after a rollback, are no-ops.
func (g *RunGuard) CommitOnce() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.committed || g.rolledBack {
		return nil
	}
	if err := g.meter.Commit(); err != nil {
		return err
	}
	g.committed = true
	return nil
}

// RollbackIfUncommitted releases the reservation when the run produced no
// successful stage. A no-op after a commit or a prior rollback, so failure
// and cancellation paths may both call it.
func (g *RunGuard) RollbackIfUncommitted() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.committed || g.rolledBack {
		return nil
	}
	if err := g.meter.Rollback(); err != nil {
		return err
	}
	g.rolledBack = true
	return nil
}

// Committed reports whether the run has been charged.
func (g *RunGuard) Committed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.committed
}
