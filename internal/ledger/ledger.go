// Package ledger maintains the in-memory view of one owner's time
// entries and per-job pay settings, and derives job lists and
// hours/gross/net totals from it.
//
// The ledger is a read-side view plus pass-through write intent: it never
// persists anything itself. Writes go to the stores; the displayed state
// only changes once a store subscription delivers the next snapshot.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"worklog/internal/core"
	applog "worklog/internal/log"
	"worklog/internal/store"
)

// view is one consistent snapshot pair. It is replaced wholesale, never
// mutated, so readers can derive stats without observing a half-applied
// update.
type view struct {
	entries  []core.Entry
	settings map[string]core.JobSettings
}

// Ledger aggregates one owner's entries and settings.
type Ledger struct {
	owner    string
	entries  store.EntryStore
	settings store.SettingsStore
	log      *applog.Logger

	mu       sync.RWMutex
	view     *view
	version  uint64 // bumped on every snapshot swap
	selected string // local UI state, not synchronized across sessions

	running        bool
	stopCh, doneCh chan struct{}
	cancelEntries  store.CancelFunc
	cancelSettings store.CancelFunc
}

func New(owner string, entries store.EntryStore, settings store.SettingsStore) *Ledger {
	return &Ledger{
		owner:    owner,
		entries:  entries,
		settings: settings,
		log:      applog.ForComponent(applog.ComponentLedger),
		view:     &view{settings: map[string]core.JobSettings{}},
	}
}

// Start subscribes to both stores and begins applying their snapshots.
// The two streams are independent and may interleave in any order; each
// stream's own updates are applied in arrival order.
func (l *Ledger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("ledger for %s is already running", l.owner)
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	entryCh, cancelEntries, err := l.entries.SubscribeEntries(ctx, l.owner)
	if err != nil {
		l.markStopped()
		return fmt.Errorf("subscribe entries: %w", err)
	}
	settingsCh, cancelSettings, err := l.settings.SubscribeSettings(ctx, l.owner)
	if err != nil {
		cancelEntries()
		l.markStopped()
		return fmt.Errorf("subscribe settings: %w", err)
	}

	l.mu.Lock()
	l.cancelEntries = cancelEntries
	l.cancelSettings = cancelSettings
	l.mu.Unlock()

	go l.runLoop(ctx, entryCh, settingsCh)

	l.log.InfoContext(ctx, "Ledger started", applog.FieldOwner, l.owner)
	return nil
}

// Stop tears down both subscriptions and clears the held snapshots.
// Pending fire-and-forget writes may still land at the stores afterwards;
// that is accepted.
func (l *Ledger) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	l.view = &view{settings: map[string]core.JobSettings{}}
	l.version++
	l.selected = ""
	l.mu.Unlock()

	l.log.InfoContext(ctx, "Ledger stopped", applog.FieldOwner, l.owner)
	return nil
}

func (l *Ledger) markStopped() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Ledger) runLoop(ctx context.Context, entryCh <-chan []core.Entry, settingsCh <-chan map[string]core.JobSettings) {
	defer func() {
		l.mu.Lock()
		if l.cancelEntries != nil {
			l.cancelEntries()
		}
		if l.cancelSettings != nil {
			l.cancelSettings()
		}
		l.running = false
		doneCh := l.doneCh
		l.mu.Unlock()
		close(doneCh)
	}()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case entries, ok := <-entryCh:
			if !ok {
				// Degraded: keep serving the stale snapshot.
				l.log.WarnContext(ctx, "Entry subscription closed", applog.FieldOwner, l.owner)
				entryCh = nil
				continue
			}
			l.applyEntries(entries)
		case settings, ok := <-settingsCh:
			if !ok {
				l.log.WarnContext(ctx, "Settings subscription closed", applog.FieldOwner, l.owner)
				settingsCh = nil
				continue
			}
			l.applySettings(settings)
		}
	}
}

func (l *Ledger) applyEntries(entries []core.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.view = &view{entries: entries, settings: l.view.settings}
	l.version++
}

func (l *Ledger) applySettings(settings map[string]core.JobSettings) {
	if settings == nil {
		settings = map[string]core.JobSettings{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.view = &view{entries: l.view.entries, settings: settings}
	l.version++
}

// current returns the snapshot pair the derived computations read.
func (l *Ledger) current() *view {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view
}

// Version identifies the current snapshot pair; it changes on every
// applied update. Useful as a cache key component.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Jobs returns the owner's job list derived from the current snapshot.
func (l *Ledger) Jobs() []string {
	v := l.current()
	return core.JobList(v.entries, v.settings)
}

// SelectedJob returns the job in focus, defaulting to the first entry of
// the job list until SelectJob is called.
func (l *Ledger) SelectedJob() string {
	l.mu.RLock()
	selected := l.selected
	l.mu.RUnlock()
	if selected != "" {
		return selected
	}
	return l.Jobs()[0]
}

// SelectJob puts a job in focus for entry and single-job stats.
func (l *Ledger) SelectJob(job string) {
	job = core.NormalizeJob(job)
	l.mu.Lock()
	l.selected = job
	l.mu.Unlock()
}

// Entries returns the current entry set in display order (date
// descending). When job is non-empty only that job's entries are listed.
func (l *Ledger) Entries(job string) []core.Entry {
	v := l.current()
	if job == "" {
		return core.SortedByDateDesc(v.entries)
	}
	job = core.NormalizeJob(job)
	var filtered []core.Entry
	for _, e := range v.entries {
		if core.NormalizeJob(e.Job) == job {
			filtered = append(filtered, e)
		}
	}
	return core.SortedByDateDesc(filtered)
}

// StatsFor prices one job's entries with that job's settings.
func (l *Ledger) StatsFor(job string) core.Stats {
	v := l.current()
	return core.StatsFor(job, v.entries, v.settings)
}

// GlobalStats aggregates across all jobs, each entry priced with its own
// job's rate and tax.
func (l *Ledger) GlobalStats() core.Stats {
	v := l.current()
	return core.GlobalStats(v.entries, v.settings)
}

// Settings returns the settings record for a job, zero-valued when the
// job has none.
func (l *Ledger) Settings(job string) core.JobSettings {
	v := l.current()
	return v.settings[core.NormalizeJob(job)]
}

// AddEntry validates and relays a creation request to the entry store.
// The local view is not updated optimistically; it changes when the
// subscription delivers the next snapshot.
func (l *Ledger) AddEntry(ctx context.Context, date core.Date, hours float64, description, job string) error {
	e := core.Entry{
		Owner:       l.owner,
		Date:        date,
		Hours:       hours,
		Description: description,
		Job:         core.NormalizeJob(job),
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := l.entries.Create(ctx, e); err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

// DeleteEntry relays a deletion request. Confirmation of the intent is
// the caller's concern; the ledger only relays confirmed deletes.
func (l *Ledger) DeleteEntry(ctx context.Context, id string) error {
	if err := l.entries.Delete(ctx, l.owner, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// SetJobSettings validates and upserts the (owner, job) settings record.
func (l *Ledger) SetJobSettings(ctx context.Context, job string, hourlyRate, taxPercent float64) error {
	js := core.JobSettings{HourlyRate: hourlyRate, TaxPercent: taxPercent}
	if err := js.Validate(); err != nil {
		return err
	}
	if err := l.settings.Upsert(ctx, l.owner, core.NormalizeJob(job), js); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// ExportMonth builds the export rows for one job and calendar month
// (1-indexed) from the current snapshot. Returns core.ErrNoEntries when
// the month is empty; the caller shows that instead of an empty file.
func (l *Ledger) ExportMonth(job string, year, month int) ([]core.ExportRow, error) {
	v := l.current()
	return core.MonthRows(job, year, month, v.entries, v.settings)
}
