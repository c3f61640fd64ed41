// Package postgres implements the cold-room store on PostgreSQL with GORM.
// Group reads inside a transaction take row locks, and domain events go to the
// outbox_events table in the same transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/events"
	"github.com/wms-platform/coldroom-service/pkg/cloudevents"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	outboxPostgres "github.com/wms-platform/coldroom-service/pkg/outbox/postgres"
	sharedPostgres "github.com/wms-platform/coldroom-service/pkg/postgres"
	"github.com/wms-platform/coldroom-service/pkg/resilience"
)

const backend = "postgres"

// Store implements domain.Store
type Store struct {
	db           *gorm.DB
	outboxRepo   *outboxPostgres.OutboxRepository
	eventFactory *cloudevents.EventFactory
	metrics      *metrics.Metrics
	logger       *logging.Logger
	txRetry      *resilience.RetryConfig
	inTx         bool
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a store. workerID identifies this process in outbox leases.
func NewStore(db *gorm.DB, workerID string, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger) *Store {
	return &Store{
		db:           db,
		outboxRepo:   outboxPostgres.NewOutboxRepository(db, workerID),
		eventFactory: eventFactory,
		metrics:      m,
		logger:       logger.WithComponent("postgres-store"),
		txRetry:      resilience.TransactionRetryConfig(sharedPostgres.IsTransient),
	}
}

// Migrate creates or updates the tables, the outbox included
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&boxRow{},
		&palletRow{},
		&countingRecordRow{},
		&temperatureLogRow{},
		&repackingRecordRow{},
		&outboxPostgres.Row{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate cold-room schema: %w", err)
	}
	return nil
}

// OutboxRepository exposes the outbox for the publisher
func (s *Store) OutboxRepository() *outboxPostgres.OutboxRepository {
	return s.outboxRepo
}

func (s *Store) Boxes() domain.BoxRepository                      { return boxRepository{s} }
func (s *Store) Pallets() domain.PalletRepository                 { return palletRepository{s} }
func (s *Store) CountingRecords() domain.CountingRecordRepository { return countingRecordRepository{s} }
func (s *Store) TemperatureLogs() domain.TemperatureLogRepository { return temperatureLogRepository{s} }
func (s *Store) RepackingRecords() domain.RepackingRecordRepository {
	return repackingRecordRepository{s}
}
func (s *Store) Events() domain.EventRecorder { return eventRecorder{s} }

// WithinTransaction runs fn in a database transaction, re-running it on
// serialization failures and deadlocks. Nested calls join the outer transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	start := time.Now()
	err := resilience.Retry(ctx, s.txRetry, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			tx := *s
			tx.db = gtx
			tx.inTx = true
			return fn(outboxPostgres.ContextWithTx(ctx, gtx), &tx)
		})
	})
	s.observe(ctx, "transaction", "commit", start, err)
	return err
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return sharedPostgres.HealthCheck(ctx, s.db)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Store) observe(ctx context.Context, target, op string, start time.Time, err error) {
	d := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(backend, target, op, err == nil, d)
	}
	s.logger.StoreOperation(ctx, target, op, d, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

type eventRecorder struct{ s *Store }

// Record writes the events to the outbox, joining the open transaction if any
func (r eventRecorder) Record(ctx context.Context, domainEvents ...domain.DomainEvent) (err error) {
	if len(domainEvents) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { r.s.observe(ctx, "outbox_events", "save", start, err) }()

	outboxEvents, err := events.ToOutbox(ctx, r.s.eventFactory, domainEvents)
	if err != nil {
		return err
	}
	if r.s.inTx {
		ctx = outboxPostgres.ContextWithTx(ctx, r.s.db)
	}
	if err = r.s.outboxRepo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}
