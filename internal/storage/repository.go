// Package storage implements the store ports on SQLite.
//
// Writes go through the database; after every successful write the
// owner's full set is re-read and pushed to in-process subscribers, so
// the subscription contract (stream of complete snapshots) holds without
// any incremental patching. When a change notifier is attached, writes
// are additionally announced on the bus so other instances can refresh.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"worklog/internal/core"
	applog "worklog/internal/log"
	"worklog/internal/store"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// ChangeNotifier announces a committed write to other instances.
type ChangeNotifier interface {
	PublishChange(ctx context.Context, owner, collection string) error
}

type Repository struct {
	db       *sql.DB
	notifier ChangeNotifier
	log      *applog.Logger

	mu          sync.Mutex
	entrySubs   map[string][]chan []core.Entry
	settingSubs map[string][]chan map[string]core.JobSettings

	// Serializes snapshot re-read and push, so the last snapshot
	// delivered to subscribers reflects the last committed write.
	notifyMu sync.Mutex
}

var (
	_ store.EntryStore    = (*Repository)(nil)
	_ store.SettingsStore = (*Repository)(nil)
	_ store.UserStore     = (*Repository)(nil)
)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time; a single connection serializes
	// concurrent writes instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:          db,
		log:         applog.ForComponent(applog.ComponentStorage),
		entrySubs:   make(map[string][]chan []core.Entry),
		settingSubs: make(map[string][]chan map[string]core.JobSettings),
	}, nil
}

// SetNotifier attaches the change bus. Publish failures degrade to local
// notification only; they never fail the write.
func (r *Repository) SetNotifier(n ChangeNotifier) {
	r.notifier = n
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SubscribeEntries implements store.EntryStore. The current snapshot is
// delivered before the call returns; a read failure degrades to an empty
// initial snapshot rather than failing the subscription.
func (r *Repository) SubscribeEntries(ctx context.Context, owner string) (<-chan []core.Entry, store.CancelFunc, error) {
	snapshot, err := r.EntriesFor(ctx, owner)
	if err != nil {
		r.log.WarnContext(ctx, "Initial entry snapshot failed, starting empty", applog.FieldOwner, owner, applog.FieldError, err)
	}

	ch := make(chan []core.Entry, 1)
	r.mu.Lock()
	r.entrySubs[owner] = append(r.entrySubs[owner], ch)
	r.mu.Unlock()

	store.PushLatest(ch, snapshot)
	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.entrySubs[owner]
		for i, c := range subs {
			if c == ch {
				r.entrySubs[owner] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (r *Repository) SubscribeSettings(ctx context.Context, owner string) (<-chan map[string]core.JobSettings, store.CancelFunc, error) {
	snapshot, err := r.SettingsFor(ctx, owner)
	if err != nil {
		r.log.WarnContext(ctx, "Initial settings snapshot failed, starting empty", applog.FieldOwner, owner, applog.FieldError, err)
		snapshot = map[string]core.JobSettings{}
	}

	ch := make(chan map[string]core.JobSettings, 1)
	r.mu.Lock()
	r.settingSubs[owner] = append(r.settingSubs[owner], ch)
	r.mu.Unlock()

	store.PushLatest(ch, snapshot)
	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.settingSubs[owner]
		for i, c := range subs {
			if c == ch {
				r.settingSubs[owner] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (r *Repository) Create(ctx context.Context, e core.Entry) (string, error) {
	e = e.Normalized()
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (owner_id, work_date, hours, description, job, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Owner, e.Date.String(), e.Hours, e.Description, e.Job, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("entry id: %w", err)
	}

	r.log.InfoContext(ctx, "Entry saved",
		applog.FieldEntryID, id, applog.FieldOwner, e.Owner, "date", e.Date.String(),
		applog.FieldHours, e.Hours, applog.FieldJob, e.Job)

	r.notifyEntries(ctx, e.Owner)
	r.publish(ctx, e.Owner, store.CollectionEntries)
	return strconv.FormatInt(id, 10), nil
}

func (r *Repository) Delete(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry result: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	r.log.InfoContext(ctx, "Entry deleted", applog.FieldEntryID, id, applog.FieldOwner, owner)
	r.notifyEntries(ctx, owner)
	r.publish(ctx, owner, store.CollectionEntries)
	return nil
}

func (r *Repository) Upsert(ctx context.Context, owner, job string, js core.JobSettings) error {
	if err := js.Validate(); err != nil {
		return err
	}
	job = core.NormalizeJob(job)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_settings (owner_id, job, hourly_rate, tax_percent)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner_id, job) DO UPDATE SET
		   hourly_rate = excluded.hourly_rate,
		   tax_percent = excluded.tax_percent`,
		owner, job, js.HourlyRate, js.TaxPercent)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}

	r.log.InfoContext(ctx, "Job settings saved",
		applog.FieldOwner, owner, applog.FieldJob, job, "hourly_rate", js.HourlyRate, "tax_percent", js.TaxPercent)

	r.notifySettings(ctx, owner)
	r.publish(ctx, owner, store.CollectionSettings)
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES (?, ?)`, email, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrEmailTaken
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("user id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u store.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// EntriesFor reads an owner's complete, normalized entry set.
func (r *Repository) EntriesFor(ctx context.Context, owner string) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, work_date, hours, description, job, created_at
		 FROM entries WHERE owner_id = ? ORDER BY work_date DESC, created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		var (
			e                   core.Entry
			workDate, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Owner, &workDate, &e.Hours, &e.Description, &e.Job, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		d, err := core.ParseDate(workDate)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		e.Date = d
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e.Normalized())
	}
	return entries, rows.Err()
}

// SettingsFor reads an owner's settings keyed by job name.
func (r *Repository) SettingsFor(ctx context.Context, owner string) (map[string]core.JobSettings, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT job, hourly_rate, tax_percent FROM job_settings WHERE owner_id = ?`, owner)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.JobSettings)
	for rows.Next() {
		var (
			job string
			js  core.JobSettings
		)
		if err := rows.Scan(&job, &js.HourlyRate, &js.TaxPercent); err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		out[core.NormalizeJob(job)] = js
	}
	return out, rows.Err()
}

// Refresh re-reads a collection and pushes it to local subscribers.
// Driven by the change bus when another instance wrote.
func (r *Repository) Refresh(ctx context.Context, owner, collection string) {
	switch collection {
	case store.CollectionEntries:
		r.notifyEntries(ctx, owner)
	case store.CollectionSettings:
		r.notifySettings(ctx, owner)
	default:
		r.log.WarnContext(ctx, "Refresh for unknown collection", "collection", collection)
	}
}

func (r *Repository) notifyEntries(ctx context.Context, owner string) {
	r.mu.Lock()
	subs := append([]chan []core.Entry(nil), r.entrySubs[owner]...)
	r.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	snapshot, err := r.EntriesFor(ctx, owner)
	if err != nil {
		// Degraded: subscribers keep the previous snapshot.
		r.log.ErrorContext(ctx, "Entry snapshot refresh failed", applog.FieldOwner, owner, applog.FieldError, err)
		return
	}
	for _, ch := range subs {
		store.PushLatest(ch, snapshot)
	}
}

func (r *Repository) notifySettings(ctx context.Context, owner string) {
	r.mu.Lock()
	subs := append([]chan map[string]core.JobSettings(nil), r.settingSubs[owner]...)
	r.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	snapshot, err := r.SettingsFor(ctx, owner)
	if err != nil {
		r.log.ErrorContext(ctx, "Settings snapshot refresh failed", applog.FieldOwner, owner, applog.FieldError, err)
		return
	}
	for _, ch := range subs {
		store.PushLatest(ch, snapshot)
	}
}

func (r *Repository) publish(ctx context.Context, owner, collection string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.PublishChange(ctx, owner, collection); err != nil {
		r.log.ErrorContext(ctx, "Change publish failed",
			applog.FieldOwner, owner, "collection", collection, applog.FieldError, err)
	}
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
