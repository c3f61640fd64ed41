package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/events"
)

func newestFirst(field string) bson.D {
	return bson.D{{Key: field, Value: -1}, {Key: "_id", Value: -1}}
}

type temperatureLogDocument struct {
	ID          string                `bson:"_id"`
	ColdRoomID  string                `bson:"coldRoomId"`
	Temperature primitive.Decimal128  `bson:"temperature"`
	Humidity    *primitive.Decimal128 `bson:"humidity,omitempty"`
	OutOfRange  bool                  `bson:"outOfRange"`
	RecordedBy  string                `bson:"recordedBy,omitempty"`
	RecordedAt  time.Time             `bson:"recordedAt"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func toTemperatureLogDocument(l *domain.TemperatureLog) (*temperatureLogDocument, error) {
	temp, err := toDecimal128(l.TemperatureC)
	if err != nil {
		return nil, fmt.Errorf("failed to encode temperature: %w", err)
	}
	doc := &temperatureLogDocument{
		ID:          l.ID,
		ColdRoomID:  l.ColdRoomID,
		Temperature: temp,
		OutOfRange:  l.OutOfRange,
		RecordedBy:  l.RecordedBy,
		RecordedAt:  l.RecordedAt,
	}
	if l.HumidityPct != nil {
		h, err := toDecimal128(*l.HumidityPct)
		if err != nil {
			return nil, fmt.Errorf("failed to encode humidity: %w", err)
		}
		doc.Humidity = &h
	}
	return doc, nil
}

func (d *temperatureLogDocument) toDomain() (*domain.TemperatureLog, error) {
	temp, err := fromDecimal128(d.Temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode temperature of %s: %w", d.ID, err)
	}
	l := &domain.TemperatureLog{
		ID:           d.ID,
		ColdRoomID:   d.ColdRoomID,
		TemperatureC: temp,
		OutOfRange:   d.OutOfRange,
		RecordedBy:   d.RecordedBy,
		RecordedAt:   d.RecordedAt,
	}
	if d.Humidity != nil {
		h, err := fromDecimal128(*d.Humidity)
		if err != nil {
			return nil, fmt.Errorf("failed to decode humidity of %s: %w", d.ID, err)
		}
		l.HumidityPct = &h
	}
	return l, nil
}

type temperatureLogRepository struct{ s *Store }

func (r temperatureLogRepository) Create(ctx context.Context, log *domain.TemperatureLog) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, TemperatureLogsCollection, "create", start, err) }()

	doc, err := toTemperatureLogDocument(log)
	if err != nil {
		return err
	}
	if _, err = r.s.temps.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert temperature log: %w", err)
	}
	return nil
}

func (r temperatureLogRepository) List(ctx context.Context, coldRoomID string, limit int) ([]*domain.TemperatureLog, error) {
	filter := bson.M{}
	if coldRoomID != "" {
		filter["coldRoomId"] = coldRoomID
	}
	opts := options.Find().SetSort(newestFirst("recordedAt"))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	docs, err := findAll[temperatureLogDocument](ctx, r.s.temps, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list temperature logs: %w", err)
	}
	out := make([]*domain.TemperatureLog, 0, len(docs))
	for _, d := range docs {
		l, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r temperatureLogRepository) Latest(ctx context.Context, coldRoomID string) (*domain.TemperatureLog, error) {
	logs, err := r.List(ctx, coldRoomID, 1)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return logs[0], nil
}

// repackingRecordDocument stores the entry lists as JSON text
type repackingRecordDocument struct {
	ID            string    `bson:"_id"`
	ColdRoomID    string    `bson:"coldRoomId"`
	RemovedBoxes  string    `bson:"removedBoxes"`
	ReturnedBoxes string    `bson:"returnedBoxes"`
	RejectedBoxes int       `bson:"rejectedBoxes"`
	Notes         string    `bson:"notes,omitempty"`
	ProcessedBy   string    `bson:"processedBy,omitempty"`
	Timestamp     time.Time `bson:"timestamp"`
}

type repackingRecordRepository struct{ s *Store }

func (r repackingRecordRepository) Create(ctx context.Context, record *domain.RepackingRecord) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, RepackingRecordsCollection, "create", start, err) }()

	removed, err := domain.EncodeEntries(record.RemovedBoxes)
	if err != nil {
		return err
	}
	returned, err := domain.EncodeEntries(record.ReturnedBoxes)
	if err != nil {
		return err
	}
	doc := repackingRecordDocument{
		ID:            record.ID,
		ColdRoomID:    record.ColdRoomID,
		RemovedBoxes:  removed,
		ReturnedBoxes: returned,
		RejectedBoxes: record.RejectedBoxes,
		Notes:         record.Notes,
		ProcessedBy:   record.ProcessedBy,
		Timestamp:     record.Timestamp,
	}
	if _, err = r.s.repacking.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert repacking record: %w", err)
	}
	return nil
}

func (r repackingRecordRepository) List(ctx context.Context, coldRoomID string, limit int) ([]*domain.RepackingRecord, error) {
	filter := bson.M{}
	if coldRoomID != "" {
		filter["coldRoomId"] = coldRoomID
	}
	opts := options.Find().SetSort(newestFirst("timestamp"))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	docs, err := findAll[repackingRecordDocument](ctx, r.s.repacking, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list repacking records: %w", err)
	}
	out := make([]*domain.RepackingRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, r.toDomain(ctx, d))
	}
	return out, nil
}

// toDomain keeps a record whose entry lists fail to decode, with empty lists
func (r repackingRecordRepository) toDomain(ctx context.Context, d *repackingRecordDocument) *domain.RepackingRecord {
	rec := &domain.RepackingRecord{
		ID:            d.ID,
		ColdRoomID:    d.ColdRoomID,
		RejectedBoxes: d.RejectedBoxes,
		Notes:         d.Notes,
		ProcessedBy:   d.ProcessedBy,
		Timestamp:     d.Timestamp,
	}
	var err error
	if rec.RemovedBoxes, err = domain.DecodeEntries(d.RemovedBoxes); err != nil {
		r.s.logger.WithContext(ctx).WithError(err).Warn("Undecodable removed boxes on repacking record", "recordId", d.ID)
	}
	if rec.ReturnedBoxes, err = domain.DecodeEntries(d.ReturnedBoxes); err != nil {
		r.s.logger.WithContext(ctx).WithError(err).Warn("Undecodable returned boxes on repacking record", "recordId", d.ID)
	}
	return rec
}

type eventRecorder struct{ s *Store }

// Record writes the events to the outbox; inside WithinTransaction they
// commit with the state change
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
	if err = r.s.outboxRepo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}
