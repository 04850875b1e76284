package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"bizdesk/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	inFlight int
	max      int
	count    int
	failAt   int
	sleep    time.Duration
	sent     []string
	pending  []*azqueue.DequeuedMessage
	deleted  []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failAt: -1, sleep: 1 * time.Millisecond}
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	idx := f.count
	f.count++
	f.inFlight++
	if f.inFlight > f.max {
		f.max = f.inFlight
	}
	f.mu.Unlock()

	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return azqueue.EnqueueMessagesResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.sent = append(f.sent, content)
	f.mu.Unlock()

	if f.failAt >= 0 && idx == f.failAt {
		return azqueue.EnqueueMessagesResponse{}, errors.New("enqueue failure")
	}
	return azqueue.EnqueueMessagesResponse{}, nil
}

func (f *fakeQueue) DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.pending)
	if o != nil && o.NumberOfMessages != nil && int(*o.NumberOfMessages) < n {
		n = int(*o.NumberOfMessages)
	}
	msgs := f.pending[:n]
	f.pending = f.pending[n:]
	return azqueue.DequeueMessagesResponse{Messages: msgs}, nil
}

func (f *fakeQueue) DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID+"/"+popReceipt)
	return azqueue.DeleteMessageResponse{}, nil
}

func (f *fakeQueue) GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error) {
	return azqueue.GetQueuePropertiesResponse{}, nil
}

func events(n int) []domain.Event {
	evs := make([]domain.Event, n)
	for i := range evs {
		evs[i] = domain.Event{ID: "e", EntityType: domain.EntityTypeClient, Type: domain.CardMoved}
	}
	return evs
}

func TestPublishEventsUsesConcurrency(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{eventsQueue: fq, queueConcurrency: 4}

	if err := store.PublishEvents(context.Background(), "user", events(8)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fq.max < 2 {
		t.Fatalf("expected concurrent sends, max in flight: %d", fq.max)
	}
	if fq.count != 8 {
		t.Fatalf("expected 8 sends, got %d", fq.count)
	}

	var env domain.EventEnvelope
	if err := sonic.UnmarshalString(fq.sent[0], &env); err != nil {
		t.Fatalf("decode sent payload: %v", err)
	}
	if env.UserID != "user" || env.Event.Type != domain.CardMoved {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestPublishEventsPropagatesErrors(t *testing.T) {
	fq := newFakeQueue()
	fq.failAt = 2
	store := &Storage{eventsQueue: fq, queueConcurrency: 3}

	if err := store.PublishEvents(context.Background(), "user", events(6)); err == nil {
		t.Fatal("expected error")
	}
}

func TestPublishEventsSequentialWhenConfigured(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{eventsQueue: fq, queueConcurrency: 1}

	if err := store.PublishEvents(context.Background(), "user", events(5)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fq.max != 1 {
		t.Fatalf("expected sequential sends, observed max in flight: %d", fq.max)
	}
}

func TestDequeueAndAckEvents(t *testing.T) {
	str := func(s string) *string { return &s }
	count := int64(2)
	fq := newFakeQueue()
	fq.pending = []*azqueue.DequeuedMessage{
		{MessageID: str("m1"), PopReceipt: str("r1"), DequeueCount: &count, MessageText: str(`{"userId":"u1","event":{"id":"e1","type":"card-moved"}}`)},
		{MessageID: str("m2"), PopReceipt: str("r2"), MessageText: str("garbage")},
		{MessageID: str("m3"), PopReceipt: str("r3")},
	}
	store := &Storage{eventsQueue: fq}

	got, err := store.DequeueEvents(context.Background(), 2, 30)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Envelope.UserID != "u1" || got[0].Envelope.Event.ID != "e1" || got[0].DequeueCount != 2 {
		t.Fatalf("unexpected first message: %+v", got[0])
	}
	if got[1].Envelope.UserID != "" {
		t.Fatalf("expected zero envelope for undecodable message, got %+v", got[1].Envelope)
	}

	if err := store.AckEvent(context.Background(), got[0]); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(fq.deleted) != 1 || fq.deleted[0] != "m1/r1" {
		t.Fatalf("unexpected deletes: %v", fq.deleted)
	}
	if err := store.AckEvent(context.Background(), QueuedEvent{}); err == nil {
		t.Fatal("expected error acking without message id")
	}
}
