package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"worklog/internal/core"
	"worklog/internal/store"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for snapshot")
		panic("unreachable")
	}
}

func TestSubscribeEntriesDeliversInitialSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Create(ctx, core.Entry{Owner: "u1", Date: core.NewDate(2024, 1, 1), Hours: 2, Job: "acme"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel, err := s.SubscribeEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	snap := recv(t, ch)
	if len(snap) != 1 || snap[0].Job != "acme" {
		t.Fatalf("initial snapshot = %+v", snap)
	}
}

func TestCreatePushesFreshSnapshotAndNormalizes(t *testing.T) {
	s := New()
	ctx := context.Background()

	ch, cancel, err := s.SubscribeEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if got := recv(t, ch); len(got) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", got)
	}

	// Blank job and description take the legacy defaults.
	if _, err := s.Create(ctx, core.Entry{Owner: "u1", Date: core.NewDate(2024, 1, 2), Hours: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	snap := recv(t, ch)
	if len(snap) != 1 {
		t.Fatalf("snapshot after create = %+v", snap)
	}
	if snap[0].Job != core.DefaultJob || snap[0].Description != core.DefaultDescription {
		t.Fatalf("entry not normalized at ingestion: %+v", snap[0])
	}
	if snap[0].ID == "" || snap[0].CreatedAt.IsZero() {
		t.Fatalf("store must assign id and creation time: %+v", snap[0])
	}
}

func TestLaggingSubscriberSeesOnlyLatest(t *testing.T) {
	s := New()
	ctx := context.Background()

	ch, cancel, err := s.SubscribeEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Three writes without a read in between: the channel holds only
	// the final full set.
	for day := 1; day <= 3; day++ {
		if _, err := s.Create(ctx, core.Entry{Owner: "u1", Date: core.NewDate(2024, 1, day), Hours: 1, Job: "a"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	snap := recv(t, ch)
	if len(snap) != 3 {
		t.Fatalf("latest snapshot has %d entries, want 3", len(snap))
	}
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Create(ctx, core.Entry{Owner: "u1", Date: core.NewDate(2024, 1, 1), Hours: 1, Job: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "u1", id); err != store.ErrNotFound {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
	// Owner scoping: another owner cannot delete by id.
	id2, _ := s.Create(ctx, core.Entry{Owner: "u1", Date: core.NewDate(2024, 1, 2), Hours: 1, Job: "a"})
	if err := s.Delete(ctx, "u2", id2); err != store.ErrNotFound {
		t.Fatalf("cross-owner delete: got %v, want ErrNotFound", err)
	}
}

func TestUpsertValidatesAndNotifies(t *testing.T) {
	s := New()
	ctx := context.Background()

	ch, cancel, err := s.SubscribeSettings(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	recv(t, ch) // initial empty map

	if err := s.Upsert(ctx, "u1", "acme", core.JobSettings{HourlyRate: -1}); err != core.ErrNegativeRate {
		t.Fatalf("negative rate: got %v", err)
	}
	if err := s.Upsert(ctx, "u1", "acme", core.JobSettings{HourlyRate: 50, TaxPercent: 17}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snap := recv(t, ch)
	if got := snap["acme"]; got.HourlyRate != 50 || got.TaxPercent != 17 {
		t.Fatalf("settings snapshot = %+v", snap)
	}

	// Updating one job leaves others untouched.
	if err := s.Upsert(ctx, "u1", "side", core.JobSettings{HourlyRate: 30}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snap = recv(t, ch)
	if len(snap) != 2 || snap["acme"].HourlyRate != 50 {
		t.Fatalf("unrelated settings were lost: %+v", snap)
	}
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "Someone@Example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, "someone@example.com", "hash2"); err != store.ErrEmailTaken {
		t.Fatalf("duplicate email: got %v, want ErrEmailTaken", err)
	}
	u, err := s.UserByEmail(ctx, "someone@example.com")
	if err != nil || u.ID != id {
		t.Fatalf("lookup: %+v, %v", u, err)
	}
	if _, err := s.UserByEmail(ctx, "nobody@example.com"); err != store.ErrNotFound {
		t.Fatalf("missing user: got %v, want ErrNotFound", err)
	}
}

func TestConcurrentCreatesLeaveLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New()

	ch, cancel, err := s.SubscribeEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	recv(t, ch) // initial snapshot

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, core.Entry{Owner: "u1", Date: core.NewDate(2024, 6, 1), Hours: 1}); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()

	// All notifies completed before Create returned; the channel holds
	// the last snapshot pushed, which must include every write.
	var snap []core.Entry
drain:
	for {
		select {
		case snap = <-ch:
		default:
			break drain
		}
	}
	if len(snap) != writers {
		t.Fatalf("final snapshot has %d entries, want %d", len(snap), writers)
	}
}
