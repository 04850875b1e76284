package api

import (
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"bizdesk/domain"
)

var (
	lastTimestamp int64
)

// nextTimestamp returns a strictly increasing unix-nano timestamp so events
// created in the same nanosecond still order.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

func newEvent(entityType, entityID, eventType string, data any) (domain.Event, error) {
	ev := domain.Event{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Type:       eventType,
		Timestamp:  nextTimestamp(),
	}
	if data != nil {
		raw, err := sonic.Marshal(data)
		if err != nil {
			return domain.Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}
