package storage

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"bizdesk/domain"
)

// QueuedEvent is a dequeued event with the receipt needed to delete it.
type QueuedEvent struct {
	Envelope     domain.EventEnvelope
	MessageID    string
	PopReceipt   string
	DequeueCount int64
}

// PublishEvents sends the events to the domain events queue, up to
// queueConcurrency at a time. The first failure cancels the remaining sends.
func (s *Storage) PublishEvents(ctx context.Context, userID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	payloads := make([]string, len(events))
	for i, ev := range events {
		data, err := sonic.MarshalString(domain.EventEnvelope{UserID: userID, Event: ev})
		if err != nil {
			return err
		}
		payloads[i] = data
	}

	limit := s.queueConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range payloads {
		g.Go(func() error {
			_, err := s.eventsQueue.EnqueueMessage(gctx, p, nil)
			return err
		})
	}
	return g.Wait()
}

// DequeueEvents receives up to max events, hiding them from other consumers
// for visibility seconds. Messages that do not decode are returned with a
// zero envelope so the caller can delete them.
func (s *Storage) DequeueEvents(ctx context.Context, max, visibility int32) ([]QueuedEvent, error) {
	resp, err := s.eventsQueue.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  &max,
		VisibilityTimeout: &visibility,
	})
	if err != nil {
		return nil, err
	}
	out := make([]QueuedEvent, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		qe := QueuedEvent{MessageID: *m.MessageID, PopReceipt: *m.PopReceipt}
		if m.DequeueCount != nil {
			qe.DequeueCount = *m.DequeueCount
		}
		if m.MessageText != nil {
			_ = sonic.UnmarshalString(*m.MessageText, &qe.Envelope)
		}
		out = append(out, qe)
	}
	return out, nil
}

// AckEvent deletes a processed message.
func (s *Storage) AckEvent(ctx context.Context, qe QueuedEvent) error {
	if qe.MessageID == "" {
		return errors.New("ack: missing message id")
	}
	_, err := s.eventsQueue.DeleteMessage(ctx, qe.MessageID, qe.PopReceipt, nil)
	return err
}
