// Package backend selects and assembles the persistence layer.
package backend

import (
	"context"
	"fmt"

	"worklog/internal/config"
	"worklog/internal/store"
)

// Backend is the full persistence surface the application needs.
type Backend interface {
	store.EntryStore
	store.SettingsStore
	store.UserStore
}

type CleanupFunc func() error

// Result carries the assembled backend. Consume, when non-nil, is a
// blocking loop that applies change-bus messages until ctx is done.
type Result struct {
	Backend Backend
	Cleanup CleanupFunc
	Consume func(ctx context.Context) error
}

type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	}
	return false
}

// Config holds what the factory needs to build a backend.
type Config struct {
	Type Type

	// SQLite
	SQLiteDBPath string

	// Change bus (optional, sqlite only)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig maps the application config onto a backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         t,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}
