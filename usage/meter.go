// Package usage tracks the free daily analysis quota with
// reserve/commit/rollback accounting. Reserve before starting a run, commit
// once on the first successful stage, roll back if the run fails before any
// stage succeeds.
package usage

import (
	"errors"
	"sync"
	"time"
)

// ErrQuotaExhausted is returned by StartRun when the daily limit is reached.
var ErrQuotaExhausted = errors.New("daily analysis quota exhausted")

// Counters is the persisted quota state.
type Counters struct {
	Consumed  int
	Reserved  int
	LastReset time.Time
}

// Store persists the counters between processes.
type Store interface {
	Load() (Counters, error)
	Save(Counters) error
}

// Meter serializes all counter mutations; reserve/commit/rollback may be
// invoked from concurrent runs.
type Meter struct {
	mu        sync.Mutex
	store     Store
	limit     int
	unlimited bool
	now       func() time.Time

	counters Counters
	loaded   bool
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) MeterOption {
	return func(m *Meter) { m.now = now }
}

// Unlimited disables counting entirely: the premium override.
func Unlimited() MeterOption {
	return func(m *Meter) { m.unlimited = true }
}

// NewMeter builds a meter over the given store and daily limit.
func NewMeter(store Store, dailyLimit int, opts ...MeterOption) *Meter {
	m := &Meter{store: store, limit: dailyLimit, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanStartJob reports whether a new run fits under the daily limit.
func (m *Meter) CanStartJob() (bool, error) {
	if m.unlimited {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refresh(); err != nil {
		return false, err
	}
	return m.counters.Consumed+m.counters.Reserved < m.limit, nil
}

// RemainingFreeCount returns how many runs remain today.
func (m *Meter) RemainingFreeCount() (int, error) {
	if m.unlimited {
		return m.limit, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refresh(); err != nil {
		return 0, err
	}
	remaining := m.limit - (m.counters.Consumed + m.counters.Reserved)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reserve holds one quota slot ahead of a run so concurrent runs cannot race
// past the limit.
func (m *Meter) Reserve() error {
	if m.unlimited {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refresh(); err != nil {
		return err
	}
	if m.counters.Reserved < m.limit {
		m.counters.Reserved++
	}
	return m.store.Save(m.counters)
}

// Commit converts a reservation into consumption. Called once per run, on
// the first successful stage result.
func (m *Meter) Commit() error {
	if m.unlimited {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refresh(); err != nil {
		return err
	}
	if m.counters.Reserved > 0 {
		m.counters.Reserved--
	}
	if m.counters.Consumed < m.limit {
		m.counters.Consumed++
	}
	return m.store.Save(m.counters)
}

// Rollback releases a reservation after a run that failed before any stage
// succeeded. Skipping this permanently overcharges the user by one run.
func (m *Meter) Rollback() error {
	if m.unlimited {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refresh(); err != nil {
		return err
	}
	if m.counters.Reserved > 0 {
		m.counters.Reserved--
	}
	return m.store.Save(m.counters)
}

// Snapshot returns the current counters after the lazy daily reset.
func (m *Meter) Snapshot() (Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refresh(); err != nil {
		return Counters{}, err
	}
	return m.counters, nil
}

// Reset zeroes both counters immediately.
func (m *Meter) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = Counters{LastReset: m.now()}
	m.loaded = true
	return m.store.Save(m.counters)
}

// refresh loads the counters on first use and applies the lazy daily reset:
// no background timer, just a calendar-day comparison at the top of every
// operation. Callers hold mu.
func (m *Meter) refresh() error {
	if !m.loaded {
		c, err := m.store.Load()
		if err != nil {
			return err
		}
		m.counters = c
		m.loaded = true
	}
	now := m.now()
	if !sameDay(now, m.counters.LastReset) {
		m.counters = Counters{LastReset: now}
		return m.store.Save(m.counters)
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
