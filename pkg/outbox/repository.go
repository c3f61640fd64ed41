package outbox

import (
	"context"
	"time"
)

// Repository defines the interface for outbox event persistence
type Repository interface {
	// SaveAll saves events; called with the transaction context of the state change
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns up to limit events that still need delivery, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished marks an event as published
	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry increments the retry count and records the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// DeletePublished deletes events published before now-olderThan and returns the count
	DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error)

	// CountPending returns the number of events still awaiting delivery
	CountPending(ctx context.Context) (int64, error)
}
