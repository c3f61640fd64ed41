// Package events converts domain events into outbox rows
package events

import (
	"context"
	"fmt"

	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/pkg/cloudevents"
	"github.com/wms-platform/coldroom-service/pkg/kafka"
	"github.com/wms-platform/coldroom-service/pkg/outbox"
)

// Source is the CloudEvents source of every cold-room event
const Source = cloudevents.SourceColdRoom

// ToOutbox wraps each domain event in a CloudEvent addressed to the cold-room topic
func ToOutbox(ctx context.Context, factory *cloudevents.EventFactory, domainEvents []domain.DomainEvent) ([]*outbox.OutboxEvent, error) {
	out := make([]*outbox.OutboxEvent, 0, len(domainEvents))
	for _, ev := range domainEvents {
		if ev == nil {
			continue
		}
		subject := ev.AggregateType() + "/" + ev.AggregateID()
		ce := factory.CreateColdRoomEvent(ctx, ev.EventType(), subject, ev.ColdRoom(), ev)
		ce.Time = ev.OccurredAt().UTC()

		oe, err := outbox.NewOutboxEventFromCloudEvent(ev.AggregateID(), ev.AggregateType(), kafka.Topics.ColdRoomEvents, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event for %s: %w", ev.EventType(), err)
		}
		out = append(out, oe)
	}
	return out, nil
}
