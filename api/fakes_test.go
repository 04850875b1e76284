package api

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"bizdesk/domain"
	"bizdesk/pipeline"
	"bizdesk/storage"
)

// table is an in-memory stand-in for one storage table.
type table[T any] struct {
	rows map[string]map[string]T
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[string]map[string]T)}
}

func (t table[T]) list(userID string) []T {
	ids := make([]string, 0, len(t.rows[userID]))
	for id := range t.rows[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[userID][id])
	}
	return out
}

func (t table[T]) get(userID, id string) (T, error) {
	v, ok := t.rows[userID][id]
	if !ok {
		return v, domain.ErrNotFound
	}
	return v, nil
}

func (t table[T]) put(userID, id string, v T) {
	if t.rows[userID] == nil {
		t.rows[userID] = make(map[string]T)
	}
	t.rows[userID][id] = v
}

func (t table[T]) del(userID, id string) error {
	if _, ok := t.rows[userID][id]; !ok {
		return domain.ErrNotFound
	}
	delete(t.rows[userID], id)
	return nil
}

type memStore struct {
	mu           sync.Mutex
	clients      table[domain.Client]
	proposals    table[domain.Proposal]
	contracts    table[domain.Contract]
	transactions table[domain.Transaction]
	services     table[domain.Service]
	activity     []domain.Activity
	published    []domain.Event
	placements   [][]pipeline.Placement
	pingErr      error
	listErr      error
}

var _ Storage = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		clients:      newTable[domain.Client](),
		proposals:    newTable[domain.Proposal](),
		contracts:    newTable[domain.Contract](),
		transactions: newTable[domain.Transaction](),
		services:     newTable[domain.Service](),
	}
}

func (m *memStore) ListClients(_ context.Context, userID string) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.clients.list(userID), nil
}

func (m *memStore) GetClient(_ context.Context, userID, id string) (domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients.get(userID, id)
}

func (m *memStore) SaveClient(_ context.Context, userID string, c domain.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients.put(userID, c.ID, c)
	return nil
}

func (m *memStore) DeleteClient(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients.del(userID, id)
}

func (m *memStore) UpdatePlacements(_ context.Context, userID string, placements []pipeline.Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placements = append(m.placements, placements)
	for _, p := range placements {
		c, err := m.clients.get(userID, string(p.CardID))
		if err != nil {
			return err
		}
		c.Stage, c.Position = string(p.Stage), p.Position
		m.clients.put(userID, c.ID, c)
	}
	return nil
}

func (m *memStore) ListProposals(_ context.Context, userID string) ([]domain.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proposals.list(userID), nil
}

func (m *memStore) GetProposal(_ context.Context, userID, id string) (domain.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proposals.get(userID, id)
}

func (m *memStore) SaveProposal(_ context.Context, userID string, p domain.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals.put(userID, p.ID, p)
	return nil
}

func (m *memStore) DeleteProposal(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proposals.del(userID, id)
}

func (m *memStore) ListContracts(_ context.Context, userID string) ([]domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts.list(userID), nil
}

func (m *memStore) GetContract(_ context.Context, userID, id string) (domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts.get(userID, id)
}

func (m *memStore) SaveContract(_ context.Context, userID string, c domain.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts.put(userID, c.ID, c)
	return nil
}

func (m *memStore) DeleteContract(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts.del(userID, id)
}

func (m *memStore) ListTransactions(_ context.Context, userID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions.list(userID), nil
}

func (m *memStore) GetTransaction(_ context.Context, userID, id string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions.get(userID, id)
}

func (m *memStore) SaveTransaction(_ context.Context, userID string, t domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions.put(userID, t.ID, t)
	return nil
}

func (m *memStore) DeleteTransaction(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions.del(userID, id)
}

func (m *memStore) ListServices(_ context.Context, userID string) ([]domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services.list(userID), nil
}

func (m *memStore) GetService(_ context.Context, userID, id string) (domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services.get(userID, id)
}

func (m *memStore) SaveService(_ context.Context, userID string, s domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services.put(userID, s.ID, s)
	return nil
}

func (m *memStore) DeleteService(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services.del(userID, id)
}

// FetchActivity pages by index; tokens are the decimal offset.
func (m *memStore) FetchActivity(_ context.Context, _ string, token string, limit int) ([]domain.Activity, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if token != "" {
		if token != "page-2" {
			return nil, "", &storage.InvalidTokenError{Token: token}
		}
		start = limit
	}
	if limit <= 0 {
		limit = len(m.activity)
	}
	end := min(start+limit, len(m.activity))
	next := ""
	if end < len(m.activity) {
		next = "page-2"
	}
	return append([]domain.Activity(nil), m.activity[start:end]...), next, nil
}

func (m *memStore) PublishEvents(_ context.Context, _ string, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, events...)
	return nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) client(userID, id string) domain.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, _ := m.clients.get(userID, id)
	return c
}

// recordingPublisher publishes synchronously so tests can inspect events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, events []domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// headerAuth treats "Bearer <user>[:<role>]" as a valid token.
type headerAuth struct{}

func (headerAuth) PrincipalFromAuthHeader(h string) (Principal, error) {
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return Principal{}, errors.New("missing authorization header")
	}
	user, role, _ := strings.Cut(token, ":")
	return Principal{UserID: user, Role: domain.ParseRole(role)}, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return m, client
}

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type testServer struct {
	e         *echo.Echo
	store     *memStore
	publisher *recordingPublisher
	broker    *Broker
	hook      *test.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	_, rc := newTestRedis(t)
	logger, hook := test.NewNullLogger()
	ts := &testServer{
		e:         echo.New(),
		store:     newMemStore(),
		publisher: &recordingPublisher{},
		broker:    NewBroker(),
		hook:      hook,
	}
	ts.e.Use(Observe(logger))
	Register(ts.e, Deps{
		Store:     ts.store,
		Auth:      headerAuth{},
		Deduper:   NewRedisDeduper(rc, time.Hour),
		Publisher: ts.publisher,
		Broker:    ts.broker,
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	})
	return ts
}

// seedClients stores clients as placed on the default board.
func (ts *testServer) seedClients(userID string, clients ...domain.Client) {
	for _, c := range clients {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = fixedNow
		}
		_ = ts.store.SaveClient(context.Background(), userID, c)
	}
}
