// Package memory is the in-process implementation of the store ports.
// It is the default backend for local runs and the test double for
// everything above the storage layer.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"worklog/internal/core"
	"worklog/internal/store"
)

type Store struct {
	mu          sync.Mutex
	entries     map[string][]core.Entry                // owner -> entries
	settings    map[string]map[string]core.JobSettings // owner -> job -> settings
	users       map[string]store.User                  // email -> user
	entrySubs   map[string][]chan []core.Entry
	settingSubs map[string][]chan map[string]core.JobSettings
}

var (
	_ store.EntryStore    = (*Store)(nil)
	_ store.SettingsStore = (*Store)(nil)
	_ store.UserStore     = (*Store)(nil)
)

func New() *Store {
	return &Store{
		entries:     make(map[string][]core.Entry),
		settings:    make(map[string]map[string]core.JobSettings),
		users:       make(map[string]store.User),
		entrySubs:   make(map[string][]chan []core.Entry),
		settingSubs: make(map[string][]chan map[string]core.JobSettings),
	}
}

// SubscribeEntries pushes the current snapshot before returning, then a
// fresh one after every change to the owner's entries.
func (s *Store) SubscribeEntries(_ context.Context, owner string) (<-chan []core.Entry, store.CancelFunc, error) {
	ch := make(chan []core.Entry, 1)
	s.mu.Lock()
	s.entrySubs[owner] = append(s.entrySubs[owner], ch)
	snapshot := s.entrySnapshotLocked(owner)
	s.mu.Unlock()

	store.PushLatest(ch, snapshot)
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.entrySubs[owner]
		for i, c := range subs {
			if c == ch {
				s.entrySubs[owner] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (s *Store) SubscribeSettings(_ context.Context, owner string) (<-chan map[string]core.JobSettings, store.CancelFunc, error) {
	ch := make(chan map[string]core.JobSettings, 1)
	s.mu.Lock()
	s.settingSubs[owner] = append(s.settingSubs[owner], ch)
	snapshot := s.settingsSnapshotLocked(owner)
	s.mu.Unlock()

	store.PushLatest(ch, snapshot)
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.settingSubs[owner]
		for i, c := range subs {
			if c == ch {
				s.settingSubs[owner] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (s *Store) Create(_ context.Context, e core.Entry) (string, error) {
	e = e.Normalized()
	if err := e.Validate(); err != nil {
		return "", err
	}
	e.ID = uuid.NewString()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.entries[e.Owner] = append(s.entries[e.Owner], e)
	s.mu.Unlock()

	s.notifyEntries(e.Owner)
	return e.ID, nil
}

func (s *Store) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	entries := s.entries[owner]
	found := false
	for i, e := range entries {
		if e.ID == id {
			s.entries[owner] = append(entries[:i], entries[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return store.ErrNotFound
	}
	s.notifyEntries(owner)
	return nil
}

func (s *Store) Upsert(_ context.Context, owner, job string, js core.JobSettings) error {
	if err := js.Validate(); err != nil {
		return err
	}
	job = core.NormalizeJob(job)

	s.mu.Lock()
	if s.settings[owner] == nil {
		s.settings[owner] = make(map[string]core.JobSettings)
	}
	s.settings[owner][job] = js
	s.mu.Unlock()

	s.notifySettings(owner)
	return nil
}

func (s *Store) CreateUser(_ context.Context, email, passwordHash string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return "", store.ErrEmailTaken
	}
	u := store.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash}
	s.users[email] = u
	return u.ID, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

// notifyEntries snapshots and pushes under the lock, so the snapshot
// delivered last is the one taken last. PushLatest never blocks on the
// capacity-1 subscription channels, so holding the lock is safe.
func (s *Store) notifyEntries(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.entrySnapshotLocked(owner)
	for _, ch := range s.entrySubs[owner] {
		store.PushLatest(ch, snapshot)
	}
}

func (s *Store) notifySettings(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.settingsSnapshotLocked(owner)
	for _, ch := range s.settingSubs[owner] {
		store.PushLatest(ch, snapshot)
	}
}

func (s *Store) entrySnapshotLocked(owner string) []core.Entry {
	return append([]core.Entry(nil), s.entries[owner]...)
}

func (s *Store) settingsSnapshotLocked(owner string) map[string]core.JobSettings {
	out := make(map[string]core.JobSettings, len(s.settings[owner]))
	for job, js := range s.settings[owner] {
		out[job] = js
	}
	return out
}
