package api

import (
	"context"
	"testing"
	"time"
)

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	_, client := newTestRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()
	const (
		userID = "user"
		key    = "k1"
	)

	added, err := deduper.Add(ctx, userID, key)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatalf("expected key to be added")
	}

	expectedKey := userID + ":" + dedupeKeyPrefix + ":" + key
	exists, err := client.Exists(ctx, expectedKey).Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 1 {
		t.Fatalf("expected redis key %q to exist", expectedKey)
	}

	added, err = deduper.Add(ctx, "other", key)
	if err != nil || !added {
		t.Fatalf("expected key of another user to be independent, added=%v err=%v", added, err)
	}
}

func TestRedisDeduperLifecycle(t *testing.T) {
	m, client := newTestRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if _, ok, err := deduper.Response(ctx, "user", "k"); err != nil || ok {
		t.Fatalf("expected no response for unknown key, ok=%v err=%v", ok, err)
	}

	if added, err := deduper.Add(ctx, "user", "k"); err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	if added, err := deduper.Add(ctx, "user", "k"); err != nil || added {
		t.Fatalf("expected duplicate, added=%v err=%v", added, err)
	}
	if _, ok, err := deduper.Response(ctx, "user", "k"); err != nil || ok {
		t.Fatalf("expected pending key to have no response, ok=%v err=%v", ok, err)
	}

	if err := deduper.Complete(ctx, "user", "k", []byte(`{"done":true}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	data, ok, err := deduper.Response(ctx, "user", "k")
	if err != nil || !ok || string(data) != `{"done":true}` {
		t.Fatalf("unexpected response %q ok=%v err=%v", data, ok, err)
	}
	if ttl := m.TTL("user:" + dedupeKeyPrefix + ":k"); ttl != time.Minute {
		t.Fatalf("expected completion to keep the ttl, got %v", ttl)
	}

	if err := deduper.Remove(ctx, "user", "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, err := deduper.Add(ctx, "user", "k"); err != nil || !added {
		t.Fatalf("expected key to be reusable after remove, added=%v err=%v", added, err)
	}
}

func TestRedisDeduperExpiry(t *testing.T) {
	m, client := newTestRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "user", "k"); err != nil {
		t.Fatalf("add: %v", err)
	}
	m.FastForward(2 * time.Minute)
	if added, err := deduper.Add(ctx, "user", "k"); err != nil || !added {
		t.Fatalf("expected expired key to be added again, added=%v err=%v", added, err)
	}
}
