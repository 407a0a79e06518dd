package backend

import (
	"context"
	"fmt"

	"spendlog/internal/adapters"
	"spendlog/internal/amqp"
	"spendlog/internal/log"
	"spendlog/internal/store/memory"
	"spendlog/internal/store/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*Result, error) {
	st := memory.New()

	f.logger.InfoContext(ctx, "Initialized memory backend")

	return &Result{
		Store:   st,
		Feed:    st,
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*Result, error) {
	pg, err := postgres.New(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	if config.Feed == AMQPFeed {
		feed, err := amqp.NewFeed(config.AMQPURL, config.AMQPExchange)
		if err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to initialize AMQP feed: %w", err)
		}

		f.logger.InfoContext(ctx, "Initialized Postgres backend with AMQP feed",
			"exchange", config.AMQPExchange)

		// Inserts fan change events out through the exchange, so every
		// mirror sees its own writes as well as everyone else's.
		publishing := adapters.NewPublishingStore(pg, feed)

		return &Result{
			Store: publishing,
			Feed:  feed,
			Cleanup: func() error {
				err := feed.Close()
				pg.Close()
				return err
			},
		}, nil
	}

	f.logger.InfoContext(ctx, "Initialized Postgres backend with LISTEN/NOTIFY feed",
		"channel", postgres.ListenChannel)

	return &Result{
		Store: pg,
		Feed:  pg,
		Cleanup: func() error {
			pg.Close()
			return nil
		},
	}, nil
}
