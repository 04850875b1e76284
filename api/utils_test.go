package api

import (
	"sync"
	"testing"

	"github.com/bytedance/sonic"

	"bizdesk/domain"
)

func TestNextTimestampStrictlyIncreases(t *testing.T) {
	const n = 1000
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := int64(0)
			for j := 0; j < n/4; j++ {
				ts := nextTimestamp()
				if ts <= prev {
					t.Errorf("timestamp went backwards: %d after %d", ts, prev)
				}
				prev = ts
				mu.Lock()
				seen[ts] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d unique timestamps, got %d", n, len(seen))
	}
}

func TestNewEvent(t *testing.T) {
	ev, err := newEvent(domain.EntityTypeProposal, "p1", domain.EntityUpdated, domain.EntityChangedData{Name: "Website", Status: "sent"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if ev.ID == "" || ev.Timestamp == 0 {
		t.Fatalf("expected id and timestamp, got %+v", ev)
	}
	if ev.EntityType != domain.EntityTypeProposal || ev.EntityID != "p1" || ev.Type != domain.EntityUpdated {
		t.Fatalf("unexpected event: %+v", ev)
	}
	var data domain.EntityChangedData
	if err := sonic.Unmarshal(ev.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Name != "Website" || data.Status != "sent" {
		t.Fatalf("unexpected data: %+v", data)
	}

	bare, err := newEvent(domain.EntityTypeClient, "c1", domain.EntityDeleted, nil)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if bare.Data != nil {
		t.Fatalf("expected no data, got %s", bare.Data)
	}
	if bare.ID == ev.ID || bare.Timestamp <= ev.Timestamp {
		t.Fatal("expected distinct, ordered events")
	}
}
