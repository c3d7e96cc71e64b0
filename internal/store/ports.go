// Package store defines the ports the ledger consumes: the entry store,
// the settings store, and the user store behind the identity layer.
package store

import (
	"context"
	"errors"

	"worklog/internal/core"
)

// Collections named in change notifications.
const (
	CollectionEntries  = "entries"
	CollectionSettings = "settings"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrEmailTaken = errors.New("email already registered")
)

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

type (
	// EntryStore provides writes and a live full-snapshot subscription
	// over one owner's time entries. Every value delivered on the
	// channel is a complete replacement of the owner's entry set,
	// normalized (legacy blank jobs mapped to core.DefaultJob).
	EntryStore interface {
		// SubscribeEntries delivers the current snapshot immediately,
		// then a fresh one after every change. Only the latest snapshot
		// is retained when the consumer lags.
		SubscribeEntries(ctx context.Context, owner string) (<-chan []core.Entry, CancelFunc, error)
		Create(ctx context.Context, e core.Entry) (id string, err error)
		Delete(ctx context.Context, owner, id string) error
	}

	// SettingsStore provides upserts and a live subscription over one
	// owner's per-job pay settings, delivered as job-name keyed maps.
	SettingsStore interface {
		SubscribeSettings(ctx context.Context, owner string) (<-chan map[string]core.JobSettings, CancelFunc, error)
		// Upsert creates or updates the (owner, job) record, leaving
		// unrelated records untouched.
		Upsert(ctx context.Context, owner, job string, s core.JobSettings) error
	}

	// User is an account as the identity layer sees it.
	User struct {
		ID           string
		Email        string
		PasswordHash string
	}

	// UserStore backs sign-up and sign-in.
	UserStore interface {
		CreateUser(ctx context.Context, email, passwordHash string) (id string, err error)
		UserByEmail(ctx context.Context, email string) (User, error)
	}
)
