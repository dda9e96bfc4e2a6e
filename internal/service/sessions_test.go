package service

import (
	"context"
	"testing"
	"time"
)

func TestSessionCreateIdempotent(t *testing.T) {
	s := NewSessionStore(time.Hour, time.Hour, nil, testLogger())
	ctx := context.Background()

	first := s.Create(ctx, testUser)
	second := s.Create(ctx, testUser)

	if first.ID != second.ID {
		t.Error("repeated create for one address should return the same session")
	}
	if s.Len() != 1 {
		t.Errorf("got %d sessions, want 1", s.Len())
	}
}

func TestSessionLookupBothIndices(t *testing.T) {
	s := NewSessionStore(time.Hour, time.Hour, nil, testLogger())
	rec := s.Create(context.Background(), testUser)

	if got := s.Get(rec.ID); got == nil || got.ID != rec.ID {
		t.Error("lookup by id failed")
	}
	if got := s.GetByAddress(testUser); got == nil || got.ID != rec.ID {
		t.Error("lookup by address failed")
	}
	if s.Get("no-such-session") != nil {
		t.Error("unknown id should yield nil")
	}
}

func TestSessionRemove(t *testing.T) {
	s := NewSessionStore(time.Hour, time.Hour, nil, testLogger())
	rec := s.Create(context.Background(), testUser)

	s.Remove(rec.ID)

	if s.Get(rec.ID) != nil {
		t.Error("removed session should be gone by id")
	}
	if s.GetByAddress(testUser) != nil {
		t.Error("removed session should be gone by address")
	}
	if s.Len() != 0 {
		t.Errorf("got %d sessions, want 0", s.Len())
	}
}

func TestSessionExpiresSynchronously(t *testing.T) {
	s := NewSessionStore(10*time.Millisecond, time.Hour, nil, testLogger())
	rec := s.Create(context.Background(), testUser)

	time.Sleep(20 * time.Millisecond)

	// The sweep has not run, but expiry must already be enforced.
	if s.Get(rec.ID) != nil {
		t.Error("expired session should be invisible by id")
	}
	if s.GetByAddress(testUser) != nil {
		t.Error("expired session should be invisible by address")
	}
}

func TestSessionRecreateAfterExpiry(t *testing.T) {
	s := NewSessionStore(10*time.Millisecond, time.Hour, nil, testLogger())
	ctx := context.Background()

	first := s.Create(ctx, testUser)
	time.Sleep(20 * time.Millisecond)

	second := s.Create(ctx, testUser)
	if first.ID == second.ID {
		t.Error("expired session should be replaced, not reused")
	}
}

func TestSessionSweep(t *testing.T) {
	s := NewSessionStore(10*time.Millisecond, 20*time.Millisecond, nil, testLogger())
	s.Create(context.Background(), testUser)

	s.Start()
	t.Cleanup(s.Stop)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("sweep did not purge the expired session")
}

func TestSessionAuditMirror(t *testing.T) {
	store := newTestStore(t)
	s := NewSessionStore(time.Hour, time.Hour, store, testLogger())

	s.Create(context.Background(), testUser)

	n, err := store.CountSessionAudit(context.Background())
	if err != nil {
		t.Fatalf("CountSessionAudit: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d audit rows, want 1", n)
	}
}
