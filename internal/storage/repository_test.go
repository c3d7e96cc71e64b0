package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"worklog/internal/core"
	"worklog/internal/store"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "worklog.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestCreateAndReadEntries(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	id, err := repo.Create(ctx, core.Entry{
		Owner: "u1",
		Date:  mustDate(t, "2024-01-15"),
		Hours: 7.5,
		Job:   "  ", // blank job lands on the default
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	entries, err := repo.EntriesFor(ctx, "u1")
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Job != core.DefaultJob {
		t.Errorf("job = %q, want %q", e.Job, core.DefaultJob)
	}
	if e.Description != core.DefaultDescription {
		t.Errorf("description = %q, want %q", e.Description, core.DefaultDescription)
	}
	if e.ID != id {
		t.Errorf("id = %q, want %q", e.ID, id)
	}

	if _, err := repo.Create(ctx, core.Entry{Owner: "u1", Date: mustDate(t, "2024-01-16")}); !errors.Is(err, core.ErrInvalidHours) {
		t.Errorf("zero hours error = %v, want ErrInvalidHours", err)
	}
}

func TestEntriesOrderedByDateDesc(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	for _, d := range []string{"2024-01-10", "2024-03-05", "2024-02-20"} {
		if _, err := repo.Create(ctx, core.Entry{Owner: "u1", Date: mustDate(t, d), Hours: 1}); err != nil {
			t.Fatalf("create %s: %v", d, err)
		}
	}

	entries, err := repo.EntriesFor(ctx, "u1")
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	got := []string{}
	for _, e := range entries {
		got = append(got, e.Date.String())
	}
	want := []string{"2024-03-05", "2024-02-20", "2024-01-10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDeleteScopedToOwner(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	id, err := repo.Create(ctx, core.Entry{Owner: "u1", Date: mustDate(t, "2024-01-15"), Hours: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Delete(ctx, "other", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-owner delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "u1", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestUpsertSettings(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.Upsert(ctx, "u1", "bar", core.JobSettings{HourlyRate: 20, TaxPercent: 30}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(ctx, "u1", "bar", core.JobSettings{HourlyRate: 25, TaxPercent: 30}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := repo.Upsert(ctx, "u1", "bar", core.JobSettings{HourlyRate: -1}); !errors.Is(err, core.ErrNegativeRate) {
		t.Errorf("negative rate error = %v, want ErrNegativeRate", err)
	}

	settings, err := repo.SettingsFor(ctx, "u1")
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if got := settings["bar"].HourlyRate; got != 25 {
		t.Errorf("rate after upsert = %v, want 25", got)
	}
}

func TestSubscribeEntriesDeliversSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	ch, cancel, err := repo.SubscribeEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	select {
	case snap := <-ch:
		if len(snap) != 0 {
			t.Fatalf("initial snapshot has %d entries, want 0", len(snap))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := repo.Create(ctx, core.Entry{Owner: "u1", Date: mustDate(t, "2024-06-01"), Hours: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case snap := <-ch:
		if len(snap) != 1 {
			t.Fatalf("snapshot has %d entries, want 1", len(snap))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after write")
	}
}

func TestUserUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	id, err := repo.CreateUser(ctx, "Alice@Example.com", "hash1")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := repo.CreateUser(ctx, "alice@example.com", "hash2"); !errors.Is(err, store.ErrEmailTaken) {
		t.Errorf("duplicate email error = %v, want ErrEmailTaken", err)
	}

	u, err := repo.UserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.ID != id || u.PasswordHash != "hash1" {
		t.Errorf("user = %+v, want id %s", u, id)
	}

	if _, err := repo.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing user error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentCreatesLeaveLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	ch, cancel, err := repo.SubscribeEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	select {
	case <-ch: // initial snapshot
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	const writers = 10
	day := mustDate(t, "2024-06-01")
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Create(ctx, core.Entry{Owner: "u1", Date: day, Hours: 1}); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()

	// Re-read and push are serialized, so the last snapshot delivered
	// reflects every committed write.
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
