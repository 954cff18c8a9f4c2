package usage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "usage.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	// Fresh database: zero counters, no error.
	c, err := s.Load()
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if c.Consumed != 0 || c.Reserved != 0 {
		t.Fatalf("fresh counters=%+v, want zeros", c)
	}

	want := Counters{
		Consumed:  2,
		Reserved:  1,
		LastReset: time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC),
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Consumed != want.Consumed || got.Reserved != want.Reserved || !got.LastReset.Equal(want.LastReset) {
		t.Fatalf("got=%+v, want %+v", got, want)
	}

	// Second save must update the single row, not insert another.
	want.Consumed = 3
	if err := s.Save(want); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	got, err = s.Load()
	if err != nil {
		t.Fatalf("Load again: %v", err)
	}
	if got.Consumed != 3 {
		t.Fatalf("Consumed=%d, want 3", got.Consumed)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "usage.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	saved := Counters{Consumed: 1, LastReset: time.Now().UTC().Truncate(time.Second)}
	if err := s.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Load()
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if got.Consumed != 1 || !got.LastReset.Equal(saved.LastReset) {
		t.Fatalf("got=%+v, want %+v", got, saved)
	}
}

func TestMeter_OverSQLiteStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "usage.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	m := NewMeter(s, 3)
	g, err := StartRun(m)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := g.CommitOnce(); err != nil {
		t.Fatalf("CommitOnce: %v", err)
	}

	// A second meter over the same database sees the consumed slot.
	m2 := NewMeter(s, 3)
	remaining, err := m2.RemainingFreeCount()
	if err != nil {
		t.Fatalf("RemainingFreeCount: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining=%d, want 2", remaining)
	}
}
