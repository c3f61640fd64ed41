// Package mongodb implements the cold-room store on MongoDB. Domain events are
// written to the outbox collection inside the same session transaction as the
// state they describe.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/pkg/cloudevents"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	sharedMongo "github.com/wms-platform/coldroom-service/pkg/mongodb"
	outboxMongo "github.com/wms-platform/coldroom-service/pkg/outbox/mongodb"
)

// Collection names
const (
	BoxesCollection            = "coldroom_boxes"
	PalletsCollection          = "coldroom_pallets"
	CountingRecordsCollection  = "counting_records"
	TemperatureLogsCollection  = "temperature_logs"
	RepackingRecordsCollection = "repacking_records"
)

const backend = "mongodb"

// Store implements domain.Store
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	boxes      *mongo.Collection
	pallets    *mongo.Collection
	records    *mongo.Collection
	temps      *mongo.Collection
	repacking  *mongo.Collection
	outboxRepo *outboxMongo.OutboxRepository
	// maxCommitTime bounds commitTransaction; zero keeps the server default
	maxCommitTime time.Duration
	eventFactory  *cloudevents.EventFactory
	metrics       *metrics.Metrics
	logger        *logging.Logger
	inTx          bool
}

var _ domain.Store = (*Store)(nil)

// StoreOption customizes a Store
type StoreOption func(*Store)

// WithMaxCommitTime bounds each transaction commit
func WithMaxCommitTime(d time.Duration) StoreOption {
	return func(s *Store) { s.maxCommitTime = d }
}

// NewStore binds the store to db and creates its indexes
func NewStore(ctx context.Context, db *mongo.Database, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger, opts ...StoreOption) (*Store, error) {
	s := &Store{
		client:       db.Client(),
		db:           db,
		boxes:        db.Collection(BoxesCollection),
		pallets:      db.Collection(PalletsCollection),
		records:      db.Collection(CountingRecordsCollection),
		temps:        db.Collection(TemperatureLogsCollection),
		repacking:    db.Collection(RepackingRecordsCollection),
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		eventFactory: eventFactory,
		metrics:      m,
		logger:       logger.WithComponent("mongodb-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the indexes used by the group and listing queries
func (s *Store) EnsureIndexes(ctx context.Context) error {
	groupKey := bson.D{
		{Key: "coldRoomId", Value: 1},
		{Key: "variety", Value: 1},
		{Key: "boxType", Value: 1},
		{Key: "size", Value: 1},
		{Key: "grade", Value: 1},
		{Key: "isInPallet", Value: 1},
		{Key: "createdAt", Value: 1},
	}
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.boxes: {
			{Keys: groupKey},
			{Keys: bson.D{{Key: "palletId", Value: 1}}},
			{Keys: bson.D{{Key: "countingRecordId", Value: 1}}},
		},
		s.pallets: {
			{Keys: bson.D{{Key: "coldRoomId", Value: 1}, {Key: "isManual", Value: 1}}},
		},
		s.records: {
			{Keys: bson.D{{Key: "forColdroom", Value: 1}, {Key: "submittedAt", Value: -1}}},
		},
		s.temps: {
			{Keys: bson.D{{Key: "coldRoomId", Value: 1}, {Key: "recordedAt", Value: -1}}},
		},
		s.repacking: {
			{Keys: bson.D{{Key: "coldRoomId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return s.outboxRepo.EnsureIndexes(ctx)
}

// OutboxRepository exposes the outbox for the publisher
func (s *Store) OutboxRepository() *outboxMongo.OutboxRepository {
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

// WithinTransaction runs fn in a session transaction. Repositories of tx use
// the session context handed to fn; nested calls join the outer transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx := *s
	tx.inTx = true

	start := time.Now()
	err := sharedMongo.WithTransaction(ctx, s.client, s.maxCommitTime, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx, &tx)
	})
	s.observe(ctx, "transaction", "commit", start, err)
	if sharedMongo.IsWriteConflict(err) {
		// another writer touched the same documents; surfaced as contention
		return fmt.Errorf("%w: %v", domain.ErrLockNotObtained, err)
	}
	return err
}

// Ping checks the primary is reachable
func (s *Store) Ping(ctx context.Context) error {
	return sharedMongo.Ping(ctx, s.client)
}

func (s *Store) observe(ctx context.Context, target, op string, start time.Time, err error) {
	d := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(backend, target, op, err == nil, d)
	}
	s.logger.StoreOperation(ctx, target, op, d, err)
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*T
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, &doc)
	}
	return out, cursor.Err()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
