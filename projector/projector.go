// Package projector turns domain events from the events queue into activity
// feed rows and tells connected streams that the feed grew.
package projector

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bizdesk/api"
	"bizdesk/domain"
	"bizdesk/storage"
)

const (
	defaultBatch       = 16
	defaultPoll        = time.Second
	defaultVisibility  = 30 * time.Second
	defaultMaxAttempts = 5
	defaultConcurrency = 4
)

// Store is the part of storage the projector reads from and writes to.
type Store interface {
	DequeueEvents(ctx context.Context, max, visibility int32) ([]storage.QueuedEvent, error)
	AppendActivity(ctx context.Context, userID string, a domain.Activity) error
	AckEvent(ctx context.Context, qe storage.QueuedEvent) error
}

// Options tunes the polling loop. Zero values use defaults.
type Options struct {
	Batch       int
	Poll        time.Duration
	Visibility  time.Duration
	MaxAttempts int64
	Concurrency int
}

// Projector consumes the events queue.
type Projector struct {
	store    Store
	notifier api.Notifier
	log      *log.Logger
	opts     Options
}

func New(store Store, notifier api.Notifier, logger *log.Logger, opts Options) *Projector {
	if opts.Batch <= 0 {
		opts.Batch = defaultBatch
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	if opts.Visibility <= 0 {
		opts.Visibility = defaultVisibility
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = log.New()
	}
	return &Projector{store: store, notifier: notifier, log: logger, opts: opts}
}

// Run polls until ctx is done. An empty or failed poll waits one poll
// interval before the next.
func (p *Projector) Run(ctx context.Context) error {
	p.log.Infof("projector started, batch: %d, poll: %v, visibility: %v", p.opts.Batch, p.opts.Poll, p.opts.Visibility)
	for {
		n, err := p.ProcessBatch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.log.WithError(err).Error("projector batch failed")
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.opts.Poll):
		}
	}
}

// ProcessBatch dequeues one batch and projects it. It returns the number of
// messages received. A message whose projection fails stays on the queue
// and reappears after the visibility timeout.
func (p *Projector) ProcessBatch(ctx context.Context) (int, error) {
	msgs, err := p.store.DequeueEvents(ctx, int32(p.opts.Batch), int32(p.opts.Visibility/time.Second))
	if err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	failures := make([]error, len(msgs))
	for i, qe := range msgs {
		g.Go(func() error {
			failures[i] = p.process(gctx, qe)
			return nil
		})
	}
	_ = g.Wait()
	return len(msgs), errors.Join(failures...)
}

func (p *Projector) process(ctx context.Context, qe storage.QueuedEvent) error {
	env := qe.Envelope
	entry := p.log.WithFields(log.Fields{
		"message": qe.MessageID,
		"user":    env.UserID,
		"event":   env.Event.ID,
		"type":    env.Event.Type,
	})

	switch {
	case env.UserID == "" || env.Event.ID == "":
		entry.Warn("dropping undecodable event")
		return p.store.AckEvent(ctx, qe)
	case qe.DequeueCount > p.opts.MaxAttempts:
		entry.WithField("attempts", qe.DequeueCount).Error("dropping event after repeated failures")
		return p.store.AckEvent(ctx, qe)
	}

	a, ok := Summarize(env.Event)
	if !ok {
		entry.Debug("event type has no activity line")
		return p.store.AckEvent(ctx, qe)
	}
	if err := p.store.AppendActivity(ctx, env.UserID, a); err != nil {
		return err
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, env.UserID, api.UpdateActivity); err != nil {
			entry.WithError(err).Warn("activity notification failed")
		}
	}
	return p.store.AckEvent(ctx, qe)
}
