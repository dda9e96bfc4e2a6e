package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRecordSessionListenIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	count, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base)
	if err != nil {
		t.Fatalf("RecordSessionListen: %v", err)
	}
	if count != 1 {
		t.Errorf("got count %d, want 1", count)
	}

	count, err = s.RecordSessionListen(ctx, testUser, testNFT, "", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordSessionListen (second): %v", err)
	}
	if count != 2 {
		t.Errorf("got count %d, want 2", count)
	}

	agg, err := s.GetNFTListens(ctx, testNFT)
	if err != nil {
		t.Fatalf("GetNFTListens: %v", err)
	}
	if agg == nil || agg.ListenCount != 2 {
		t.Errorf("aggregate counter should be 2, got %+v", agg)
	}
}

func TestRecordSessionListenFloor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	if _, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base); err != nil {
		t.Fatalf("RecordSessionListen: %v", err)
	}

	// 10 seconds later: inside the 30-second floor.
	_, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base.Add(10*time.Second))
	if !errors.Is(err, ErrListenTooSoon) {
		t.Fatalf("got %v, want ErrListenTooSoon", err)
	}

	// A rejected listen must leave no trace in any counter.
	agg, err := s.GetNFTListens(ctx, testNFT)
	if err != nil {
		t.Fatalf("GetNFTListens: %v", err)
	}
	if agg.ListenCount != 1 {
		t.Errorf("rejected listen leaked into aggregate: got %d, want 1", agg.ListenCount)
	}
	events, err := s.CountListenEvents(ctx)
	if err != nil {
		t.Fatalf("CountListenEvents: %v", err)
	}
	if events != 1 {
		t.Errorf("rejected listen leaked into events: got %d, want 1", events)
	}

	// Exactly at the floor boundary is allowed.
	if _, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base.Add(ListenFloor)); err != nil {
		t.Fatalf("listen at floor boundary should succeed: %v", err)
	}
}

func TestRecordSessionListenFloorPerPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	otherNFT := "0:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

	if _, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base); err != nil {
		t.Fatalf("RecordSessionListen: %v", err)
	}

	// Same user, different track: the floor does not apply across pairs.
	if _, err := s.RecordSessionListen(ctx, testUser, otherNFT, "", base.Add(time.Second)); err != nil {
		t.Fatalf("different pair should not hit the floor: %v", err)
	}
}

func TestRecordSessionListenOutOfOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// An offline batch can sync in any order. A listen whose timestamp is
	// well before the stored one is still outside the floor.
	if _, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base.Add(5*time.Minute)); err != nil {
		t.Fatalf("RecordSessionListen: %v", err)
	}
	if _, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base); err != nil {
		t.Fatalf("earlier spaced listen should succeed: %v", err)
	}

	// Within the floor on the early side is still too close.
	_, err := s.RecordSessionListen(ctx, testUser, testNFT, "", base.Add(5*time.Minute-10*time.Second))
	if !errors.Is(err, ErrListenTooSoon) {
		t.Fatalf("got %v, want ErrListenTooSoon", err)
	}
}

func TestRecordSessionListenConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// N concurrent writers for the same pair, each with a timestamp spaced
	// past the floor, must all succeed with no lost updates.
	const n = 10
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(ts time.Time) {
			defer wg.Done()
			_, err := s.RecordSessionListen(ctx, testUser, testNFT, "", ts)
			errs <- err
		}(base.Add(time.Duration(i) * time.Minute))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent listen: %v", err)
		}
	}

	agg, err := s.GetNFTListens(ctx, testNFT)
	if err != nil {
		t.Fatalf("GetNFTListens: %v", err)
	}
	if agg == nil || agg.ListenCount != n {
		t.Errorf("aggregate counter should be %d, got %+v", n, agg)
	}
	events, err := s.CountListenEvents(ctx)
	if err != nil {
		t.Fatalf("CountListenEvents: %v", err)
	}
	if events != n {
		t.Errorf("got %d events, want %d", events, n)
	}
}

func TestListenEventWindowCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		nft := fmt.Sprintf("0:%064d", i)
		if _, err := s.RecordSessionListen(ctx, testUser, nft, "", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("listen %d: %v", i, err)
		}
	}

	n, err := s.CountListenEventsSince(ctx, testUser, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountListenEventsSince: %v", err)
	}
	if n != 3 {
		t.Errorf("got %d events in window, want 3", n)
	}

	n, err = s.CountListenEventsSince(ctx, testUser, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CountListenEventsSince (future cutoff): %v", err)
	}
	if n != 0 {
		t.Errorf("got %d events after future cutoff, want 0", n)
	}

	n, err = s.CountNFTListenEventsSince(ctx, testUser, "0:"+fmt.Sprintf("%064d", 1), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountNFTListenEventsSince: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d events for one track, want 1", n)
	}
}

func TestTopNFTListens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	hot := "0:" + fmt.Sprintf("%064d", 1)
	cold := "0:" + fmt.Sprintf("%064d", 2)

	for i := 0; i < 3; i++ {
		if _, err := s.RecordSessionListen(ctx, testUser, hot, "", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("listen: %v", err)
		}
	}
	if _, err := s.RecordSessionListen(ctx, testUser, cold, "", base); err != nil {
		t.Fatalf("listen: %v", err)
	}

	top, err := s.TopNFTListens(ctx, 10)
	if err != nil {
		t.Fatalf("TopNFTListens: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d rows, want 2", len(top))
	}
	if top[0].NFTAddress != hot || top[0].ListenCount != 3 {
		t.Errorf("got top row %+v, want %s with 3", top[0], hot)
	}

	top, err = s.TopNFTListens(ctx, 1)
	if err != nil {
		t.Fatalf("TopNFTListens (limit 1): %v", err)
	}
	if len(top) != 1 {
		t.Errorf("got %d rows with limit 1, want 1", len(top))
	}
}

func TestGetNFTListensUnknown(t *testing.T) {
	s := newTestStore(t)

	row, err := s.GetNFTListens(context.Background(), testNFT)
	if err != nil {
		t.Fatalf("GetNFTListens: %v", err)
	}
	if row != nil {
		t.Error("never-played track should yield (nil, nil)")
	}
}
