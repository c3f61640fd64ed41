// Package storage opens the configured persistence backend.
package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/wms-platform/coldroom-service/internal/config"
	"github.com/wms-platform/coldroom-service/internal/domain"
	mongoStore "github.com/wms-platform/coldroom-service/internal/infrastructure/mongodb"
	postgresStore "github.com/wms-platform/coldroom-service/internal/infrastructure/postgres"
	"github.com/wms-platform/coldroom-service/pkg/cloudevents"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	"github.com/wms-platform/coldroom-service/pkg/mongodb"
	"github.com/wms-platform/coldroom-service/pkg/outbox"
	"github.com/wms-platform/coldroom-service/pkg/postgres"
)

// Backend is an opened store together with its outbox and schema hooks
type Backend struct {
	Driver string
	Store  domain.Store
	Outbox outbox.Repository

	migrate func(ctx context.Context) error
	close   func(ctx context.Context) error
}

// Migrate creates or updates tables and indexes. It is idempotent.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.migrate == nil {
		return nil
	}
	return b.migrate(ctx)
}

// Close releases the underlying connection
func (b *Backend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// Open connects the backend named by cfg.StoreDriver. Postgres tables are not
// migrated here; call Migrate when the process owns the schema.
func Open(ctx context.Context, cfg *config.Config, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store := postgresStore.NewStore(db, WorkerID(), eventFactory, m, logger)
		return &Backend{
			Driver:  config.StorePostgres,
			Store:   store,
			Outbox:  store.OutboxRepository(),
			migrate: store.Migrate,
			close: func(context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil

	case config.StoreMongoDB:
		client, err := mongodb.NewClient(ctx, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("open mongodb: %w", err)
		}
		store, err := mongoStore.NewStore(ctx, client.Database(), eventFactory, m, logger,
			mongoStore.WithMaxCommitTime(client.MaxCommitTime()))
		if err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("prepare mongodb store: %w", err)
		}
		return &Backend{
			Driver:  config.StoreMongoDB,
			Store:   store,
			Outbox:  store.OutboxRepository(),
			migrate: store.EnsureIndexes,
			close:   client.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

// WorkerID identifies this process when claiming outbox rows
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "coldroom"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
