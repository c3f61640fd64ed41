package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wms-platform/coldroom-service/pkg/outbox"
)

// Row is the GORM model of the outbox_events table
type Row struct {
	ID            string     `gorm:"primaryKey;type:uuid"`
	AggregateID   string     `gorm:"index:idx_outbox_aggregate;not null"`
	AggregateType string     `gorm:"not null"`
	EventType     string     `gorm:"index;not null"`
	Topic         string     `gorm:"not null"`
	Payload       []byte     `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time  `gorm:"index:idx_outbox_pending,priority:2;not null"`
	PublishedAt   *time.Time `gorm:"index:idx_outbox_pending,priority:1"`
	RetryCount    int        `gorm:"not null;default:0"`
	MaxRetries    int        `gorm:"not null;default:10"`
	LastError     string
	LockedAt      *time.Time
	LockedBy      *string
}

// TableName pins the table name
func (Row) TableName() string { return "outbox_events" }

func toRow(e *outbox.OutboxEvent) Row {
	return Row{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Topic:         e.Topic,
		Payload:       e.Payload,
		CreatedAt:     e.CreatedAt,
		PublishedAt:   e.PublishedAt,
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
	}
}

func (r Row) toEvent() *outbox.OutboxEvent {
	return &outbox.OutboxEvent{
		ID:            r.ID,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		Topic:         r.Topic,
		Payload:       r.Payload,
		CreatedAt:     r.CreatedAt,
		PublishedAt:   r.PublishedAt,
		RetryCount:    r.RetryCount,
		MaxRetries:    r.MaxRetries,
		LastError:     r.LastError,
	}
}

// OutboxRepository implements outbox.Repository on PostgreSQL.
// Several publisher instances may poll concurrently: rows are claimed with a
// lease under FOR UPDATE SKIP LOCKED so each event goes to one worker at a time.
type OutboxRepository struct {
	db       *gorm.DB
	workerID string
	leaseTTL time.Duration
}

var _ outbox.Repository = (*OutboxRepository)(nil)

// NewOutboxRepository creates a repository. workerID identifies this process in lease columns.
func NewOutboxRepository(db *gorm.DB, workerID string) *OutboxRepository {
	return &OutboxRepository{db: db, workerID: workerID, leaseTTL: 30 * time.Second}
}

type txKey struct{}

// ContextWithTx makes SaveAll join an open GORM transaction
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func (r *OutboxRepository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// SaveAll inserts events, joining the transaction carried by ctx if any
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]Row, len(events))
	for i, e := range events {
		rows[i] = toRow(e)
	}
	if err := r.conn(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// FindUnpublished claims up to limit pending events for this worker
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	now := time.Now().UTC()
	var claimed []Row

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("published_at IS NULL").
			Where("retry_count < max_retries").
			Where("(locked_at IS NULL OR locked_at <= ?)", now.Add(-r.leaseTTL)).
			Order("created_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]string, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
		}
		return tx.Model(&Row{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"locked_at": now, "locked_by": r.workerID}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim unpublished events: %w", err)
	}

	events := make([]*outbox.OutboxEvent, len(claimed))
	for i, row := range claimed {
		events[i] = row.toEvent()
	}
	return events, nil
}

// MarkPublished marks an event as published and releases its lease
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	res := r.db.WithContext(ctx).Model(&Row{}).
		Where("id = ?", eventID).
		Updates(map[string]any{"published_at": time.Now().UTC(), "locked_at": nil, "locked_by": nil})
	if res.Error != nil {
		return fmt.Errorf("failed to mark event as published: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// IncrementRetry records a failed attempt and releases the lease
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	res := r.db.WithContext(ctx).Model(&Row{}).
		Where("id = ?", eventID).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  errorMsg,
			"locked_at":   nil,
			"locked_by":   nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to increment retry count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// DeletePublished deletes events published before now-olderThan
func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", time.Now().UTC().Add(-olderThan)).
		Delete(&Row{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountPending returns the number of undelivered events
func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Row{}).Where("published_at IS NULL").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}
