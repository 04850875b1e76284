package api

import (
	"context"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bizdesk/domain"
)

const (
	minPublisherWorkers   = 4
	maxPublisherWorkers   = 64
	workersPerQueueSlot   = 2
	workersPerCPU         = 4
	bufferPerWorker       = 128
	defaultPublishTimeout = 30 * time.Second
)

// EventSink is where published events end up, normally the domain events queue.
type EventSink interface {
	PublishEvents(ctx context.Context, userID string, events []domain.Event) error
}

type publishJob struct {
	userID string
	events []domain.Event
}

// PublisherOptions sizes the worker pool. Zero values are derived from the
// queue concurrency and CPU count.
type PublisherOptions struct {
	Workers          int
	Buffer           int
	QueueConcurrency int
	Timeout          time.Duration
	Handoff          time.Duration
}

// EventPublisher hands domain events to background workers so handlers do not
// wait on the queue. When the buffer stays full past the handoff timeout the
// caller publishes inline instead.
type EventPublisher struct {
	sink    EventSink
	log     *log.Logger
	timeout time.Duration
	handoff time.Duration

	mu     sync.RWMutex
	jobs   chan publishJob
	closed bool
	wg     sync.WaitGroup
}

// NewEventPublisher starts the workers.
func NewEventPublisher(sink EventSink, logger *log.Logger, opts PublisherOptions) *EventPublisher {
	if logger == nil {
		panic("api.NewEventPublisher: logger is nil")
	}
	workers, buffer := computeWorkerDefaults(opts.QueueConcurrency, runtime.NumCPU())
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	if opts.Buffer > 0 {
		buffer = opts.Buffer
	}
	p := &EventPublisher{
		sink:    sink,
		log:     logger,
		timeout: opts.Timeout,
		handoff: opts.Handoff,
		jobs:    make(chan publishJob, buffer),
	}
	if p.timeout <= 0 {
		p.timeout = defaultPublishTimeout
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workers, buffer, p.timeout, p.handoff)
	return p
}

// computeWorkerDefaults scales workers with the queue send concurrency and
// the CPU count, within fixed bounds.
func computeWorkerDefaults(queueConcurrency, cpu int) (workers, buffer int) {
	workers = max(queueConcurrency*workersPerQueueSlot, cpu*workersPerCPU)
	workers = min(max(workers, minPublisherWorkers), maxPublisherWorkers)
	return workers, workers * bufferPerWorker
}

func (p *EventPublisher) worker(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.sink.PublishEvents(ctx, j.userID, j.events)
		cancel()
		if err != nil {
			p.log.WithError(err).WithFields(log.Fields{
				"user":   j.userID,
				"count":  len(j.events),
				"worker": id,
			}).Error("publish events failed")
		}
	}
}

// Publish queues the events, falling back to an inline send when the pool is
// saturated or closed. Only inline failures are returned.
func (p *EventPublisher) Publish(ctx context.Context, userID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	job := publishJob{userID: userID, events: events}
	if p.tryEnqueue(job) {
		return nil
	}
	p.log.Warn("publish buffer saturated; publishing inline")
	inlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.sink.PublishEvents(inlineCtx, userID, events)
}

func (p *EventPublisher) tryEnqueue(job publishJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
	}

	if p.handoff <= 0 {
		return false
	}
	timer := time.NewTimer(p.handoff)
	defer timer.Stop()
	select {
	case p.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to be published.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
