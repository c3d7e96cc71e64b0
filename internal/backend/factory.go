package backend

import (
	"context"
	"fmt"

	"worklog/internal/amqp"
	applog "worklog/internal/log"
	"worklog/internal/storage"
	"worklog/internal/store/memory"
)

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.ForComponent(applog.ComponentApp)
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*Result, error) {
	repo, err := storage.NewRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite repository: %w", err)
	}

	result := &Result{
		Backend: repo,
		Cleanup: repo.Close,
	}

	// The change bus is optional; a single instance works fine without it.
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize change bus client, continuing without it", applog.FieldError, err)
		} else {
			repo.SetNotifier(client)
			result.Consume = func(ctx context.Context) error {
				return client.Consume(ctx, func(msg *amqp.ChangeMessage) error {
					repo.Refresh(ctx, msg.Owner, msg.Collection)
					return nil
				})
			}
			result.Cleanup = func() error {
				client.Close()
				return repo.Close()
			}
			f.logger.Info("Initialized change bus client",
				"exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath, "change_bus", result.Consume != nil)
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	f.logger.Info("Initialized memory backend")
	return &Result{Backend: memory.New()}, nil
}
