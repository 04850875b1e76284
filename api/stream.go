package api

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// UpdateKind tells stream subscribers what changed.
type UpdateKind string

const (
	UpdateBoard    UpdateKind = "board"
	UpdateActivity UpdateKind = "activity"
)

// Update is the pub/sub message announcing a change for one user.
type Update struct {
	UserID string     `json:"userId"`
	Kind   UpdateKind `json:"kind"`
}

// Broker tracks the stream subscribers connected to this instance.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscriber]struct{})}
}

// subscriber coalesces updates per kind. However many arrive while the stream
// is busy, it sees at most one board and one activity update afterwards, and
// the board one first.
type subscriber struct {
	mu       sync.Mutex
	board    bool
	activity bool
	wake     chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{wake: make(chan struct{}, 1)}
}

func (s *subscriber) post(kind UpdateKind) {
	s.mu.Lock()
	switch kind {
	case UpdateBoard:
		s.board = true
	case UpdateActivity:
		s.activity = true
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() (UpdateKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.board:
		s.board = false
		return UpdateBoard, true
	case s.activity:
		s.activity = false
		return UpdateActivity, true
	}
	return "", false
}

// next blocks until an update is pending. It reports false once ctx is done.
func (s *subscriber) next(ctx context.Context) (UpdateKind, bool) {
	for {
		if kind, ok := s.take(); ok {
			return kind, true
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-s.wake:
		}
	}
}

func (b *Broker) subscribe(userID string) *subscriber {
	sub := newSubscriber()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*subscriber]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	return sub
}

func (b *Broker) unsubscribe(userID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[userID], sub)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
}

// Broadcast marks the update pending for every subscriber of the user. It
// never blocks.
func (b *Broker) Broadcast(userID string, kind UpdateKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[userID] {
		sub.post(kind)
	}
}

// Notify implements Notifier for single-instance deployments.
func (b *Broker) Notify(_ context.Context, userID string, kind UpdateKind) error {
	b.Broadcast(userID, kind)
	return nil
}

// RedisNotifier publishes updates on a Redis channel so every instance's
// broker hears them through SubscribeUpdates.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID string, kind UpdateKind) error {
	payload, err := sonic.MarshalString(Update{UserID: userID, Kind: kind})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// SubscribeUpdates relays updates from the Redis channel to the broker until
// ctx is done, resubscribing when the subscription drops.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, broker *Broker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		relay(ctx, logger, sub.Channel(), broker)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("pubsub channel %s closed, reconnecting", channel)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func relay(ctx context.Context, logger *log.Logger, ch <-chan *redis.Message, broker *Broker) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var u Update
			if err := sonic.UnmarshalString(msg.Payload, &u); err != nil || u.UserID == "" {
				logger.Warnf("unable to parse update %q: %v", msg.Payload, err)
				continue
			}
			switch u.Kind {
			case "":
				u.Kind = UpdateBoard
			case UpdateBoard, UpdateActivity:
			default:
				logger.Warnf("unknown update kind %q for user %s", u.Kind, u.UserID)
				continue
			}
			broker.Broadcast(u.UserID, u.Kind)
		}
	}
}
