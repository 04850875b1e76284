package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"bizdesk/domain"
	"bizdesk/pipeline"
)

// Backend is the persistence surface the API depends on. *Storage implements
// it against the table service; *Cache layers Redis over another Backend.
type Backend interface {
	ListClients(ctx context.Context, userID string) ([]domain.Client, error)
	GetClient(ctx context.Context, userID, id string) (domain.Client, error)
	SaveClient(ctx context.Context, userID string, c domain.Client) error
	DeleteClient(ctx context.Context, userID, id string) error
	UpdatePlacements(ctx context.Context, userID string, placements []pipeline.Placement) error

	ListProposals(ctx context.Context, userID string) ([]domain.Proposal, error)
	GetProposal(ctx context.Context, userID, id string) (domain.Proposal, error)
	SaveProposal(ctx context.Context, userID string, p domain.Proposal) error
	DeleteProposal(ctx context.Context, userID, id string) error

	ListContracts(ctx context.Context, userID string) ([]domain.Contract, error)
	GetContract(ctx context.Context, userID, id string) (domain.Contract, error)
	SaveContract(ctx context.Context, userID string, c domain.Contract) error
	DeleteContract(ctx context.Context, userID, id string) error

	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (domain.Transaction, error)
	SaveTransaction(ctx context.Context, userID string, t domain.Transaction) error
	DeleteTransaction(ctx context.Context, userID, id string) error

	ListServices(ctx context.Context, userID string) ([]domain.Service, error)
	GetService(ctx context.Context, userID, id string) (domain.Service, error)
	SaveService(ctx context.Context, userID string, s domain.Service) error
	DeleteService(ctx context.Context, userID, id string) error

	FetchActivity(ctx context.Context, userID, continuationToken string, limit int) ([]domain.Activity, string, error)
	PublishEvents(ctx context.Context, userID string, events []domain.Event) error
	Ping(ctx context.Context) error
}

var _ Backend = (*Storage)(nil)

// Cache wraps a Backend with Redis-backed caching of the per-user entity
// lists. Writes go to the backend first and then evict the affected list.
// Single reads and activity pages always hit the backend.
type Cache struct {
	Backend
	redis *redis.Client
	ttl   time.Duration
}

var _ Backend = (*Cache)(nil)

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A zero TTL disables population but still evicts.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Backend: base, redis: client, ttl: ttl}
}

const (
	clientsKind      = "clients"
	proposalsKind    = "proposals"
	contractsKind    = "contracts"
	transactionsKind = "transactions"
	servicesKind     = "services"
)

func cacheKey(kind, userID string) string {
	return kind + ":" + userID
}

// generationKey counts the writes to one cached list. A reader only stores
// what it loaded when no write bumped the generation in between.
func generationKey(kind, userID string) string {
	return "gen:" + cacheKey(kind, userID)
}

// generationTTL outlives any load, so an expired counter cannot come back to
// the value a reader saw.
const generationTTL = 24 * time.Hour

func cachedList[T any](ctx context.Context, c *Cache, kind, userID string, load func(context.Context, string) ([]T, error)) ([]T, error) {
	key := cacheKey(kind, userID)
	if items, ok := loadFromCache[T](ctx, c, key); ok {
		return items, nil
	}
	gen, genErr := c.generation(ctx, kind, userID)
	items, err := load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		c.storeAt(ctx, kind, userID, gen, items)
	}
	return items, nil
}

func (c *Cache) generation(ctx context.Context, kind, userID string) (string, error) {
	if c.redis == nil {
		return "", errors.New("no redis client")
	}
	gen, err := c.redis.Get(ctx, generationKey(kind, userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return gen, err
}

func loadFromCache[T any](ctx context.Context, c *Cache, key string) ([]T, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var items []T
	if err := sonic.Unmarshal(data, &items); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return items, true
}

// storeAt caches v unless the list's generation moved away from gen.
func (c *Cache) storeAt(ctx context.Context, kind, userID, gen string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	genKey := generationKey(kind, userID)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Result()
		if err == redis.Nil {
			cur, err = "", nil
		}
		if err != nil || cur != gen {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, cacheKey(kind, userID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

func (c *Cache) evict(ctx context.Context, kind, userID string) {
	if c.redis == nil {
		return
	}
	genKey := generationKey(kind, userID)
	_, _ = c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, max(generationTTL, 2*c.ttl))
		p.Del(ctx, cacheKey(kind, userID))
		return nil
	})
}

func (c *Cache) ListClients(ctx context.Context, userID string) ([]domain.Client, error) {
	return cachedList(ctx, c, clientsKind, userID, c.Backend.ListClients)
}

func (c *Cache) SaveClient(ctx context.Context, userID string, cl domain.Client) error {
	if err := c.Backend.SaveClient(ctx, userID, cl); err != nil {
		return err
	}
	c.evict(ctx, clientsKind, userID)
	return nil
}

func (c *Cache) DeleteClient(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteClient(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, clientsKind, userID)
	return nil
}

func (c *Cache) UpdatePlacements(ctx context.Context, userID string, placements []pipeline.Placement) error {
	// Evict even on failure: a partially applied batch leaves the cache stale.
	defer c.evict(ctx, clientsKind, userID)
	return c.Backend.UpdatePlacements(ctx, userID, placements)
}

func (c *Cache) ListProposals(ctx context.Context, userID string) ([]domain.Proposal, error) {
	return cachedList(ctx, c, proposalsKind, userID, c.Backend.ListProposals)
}

func (c *Cache) SaveProposal(ctx context.Context, userID string, p domain.Proposal) error {
	if err := c.Backend.SaveProposal(ctx, userID, p); err != nil {
		return err
	}
	c.evict(ctx, proposalsKind, userID)
	return nil
}

func (c *Cache) DeleteProposal(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteProposal(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, proposalsKind, userID)
	return nil
}

func (c *Cache) ListContracts(ctx context.Context, userID string) ([]domain.Contract, error) {
	return cachedList(ctx, c, contractsKind, userID, c.Backend.ListContracts)
}

func (c *Cache) SaveContract(ctx context.Context, userID string, k domain.Contract) error {
	if err := c.Backend.SaveContract(ctx, userID, k); err != nil {
		return err
	}
	c.evict(ctx, contractsKind, userID)
	return nil
}

func (c *Cache) DeleteContract(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteContract(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, contractsKind, userID)
	return nil
}

func (c *Cache) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return cachedList(ctx, c, transactionsKind, userID, c.Backend.ListTransactions)
}

func (c *Cache) SaveTransaction(ctx context.Context, userID string, t domain.Transaction) error {
	if err := c.Backend.SaveTransaction(ctx, userID, t); err != nil {
		return err
	}
	c.evict(ctx, transactionsKind, userID)
	return nil
}

func (c *Cache) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, transactionsKind, userID)
	return nil
}

func (c *Cache) ListServices(ctx context.Context, userID string) ([]domain.Service, error) {
	return cachedList(ctx, c, servicesKind, userID, c.Backend.ListServices)
}

func (c *Cache) SaveService(ctx context.Context, userID string, s domain.Service) error {
	if err := c.Backend.SaveService(ctx, userID, s); err != nil {
		return err
	}
	c.evict(ctx, servicesKind, userID)
	return nil
}

func (c *Cache) DeleteService(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteService(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, servicesKind, userID)
	return nil
}
