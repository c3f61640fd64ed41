package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wms-platform/coldroom-service/pkg/cloudevents"
	"github.com/wms-platform/coldroom-service/pkg/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryRepo struct {
	mu        sync.Mutex
	events    []*OutboxEvent
	published map[string]bool
	retries   map[string]int
}

func newMemoryRepo(events ...*OutboxEvent) *memoryRepo {
	return &memoryRepo{events: events, published: map[string]bool{}, retries: map[string]int{}}
}

func (r *memoryRepo) SaveAll(_ context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *memoryRepo) FindUnpublished(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if !r.published[e.ID] && r.retries[e.ID] < e.MaxRetries && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkPublished(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[id] = true
	return nil
}

func (r *memoryRepo) IncrementRetry(_ context.Context, id, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[id]++
	return nil
}

func (r *memoryRepo) DeletePublished(context.Context, time.Duration) (int64, error) { return 0, nil }

func (r *memoryRepo) CountPending(context.Context) (int64, error) { return 0, nil }

type recordingProducer struct {
	mu      sync.Mutex
	fail    map[string]bool
	topics  []string
	eventID []string
}

func (p *recordingProducer) PublishEvent(_ context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[event.Type] {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.eventID = append(p.eventID, event.ID)
	return nil
}

func newEvent(t *testing.T, eventType string) *OutboxEvent {
	t.Helper()
	ce := cloudevents.NewEventFactory(cloudevents.SourceColdRoom).CreateEvent(context.Background(), eventType, "pallet/p1", nil)
	e, err := NewOutboxEventFromCloudEvent("p1", "Pallet", "wms.coldroom.events", ce)
	require.NoError(t, err)
	return e
}

func TestProcessOncePublishesAndMarks(t *testing.T) {
	ok := newEvent(t, cloudevents.PalletAssembled)
	bad := newEvent(t, cloudevents.PalletDissolved)
	repo := newMemoryRepo(ok, bad)
	producer := &recordingProducer{fail: map[string]bool{cloudevents.PalletDissolved: true}}

	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{PollInterval: time.Hour, BatchSize: 10})
	delivered := p.ProcessOnce(context.Background())

	assert.Equal(t, 1, delivered)
	assert.True(t, repo.published[ok.ID])
	assert.False(t, repo.published[bad.ID])
	assert.Equal(t, 1, repo.retries[bad.ID])
	assert.Equal(t, []string{"wms.coldroom.events"}, producer.topics)
	assert.Equal(t, map[string]int{"published": 1, "failed": 1}, p.Stats())
}

func TestProcessOnceSkipsExhaustedEvents(t *testing.T) {
	e := newEvent(t, cloudevents.BoxesLoaded)
	e.MaxRetries = 1
	repo := newMemoryRepo(e)
	repo.retries[e.ID] = 1

	p := NewPublisher(repo, &recordingProducer{}, logging.NewNop(), nil, nil)
	assert.Equal(t, 0, p.ProcessOnce(context.Background()))
}

func TestStartStopDoesNotLeak(t *testing.T) {
	repo := newMemoryRepo(newEvent(t, cloudevents.BoxesLoaded))
	producer := &recordingProducer{}
	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{PollInterval: 5 * time.Millisecond, BatchSize: 10})

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		producer.mu.Lock()
		defer producer.mu.Unlock()
		return len(producer.eventID) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
}
