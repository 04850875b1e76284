package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"bizdesk/derived"
	"bizdesk/domain"
)

// resource describes the CRUD surface of one entity type.
type resource[T any] struct {
	h          *Handlers
	entityType string
	list       func(ctx context.Context, userID string) ([]T, error)
	get        func(ctx context.Context, userID, id string) (T, error)
	save       func(ctx context.Context, userID string, v T) error
	remove     func(ctx context.Context, userID, id string) error
	// prepare assigns id and timestamps, normalizes and validates v.
	// existing is nil on create.
	prepare  func(ctx context.Context, userID, id string, v T, existing *T) (T, error)
	describe func(T) domain.EntityChangedData
	// filter narrows list results from query parameters.
	filter func(c echo.Context, items []T) []T
	// decorate adds derived fields such as badges to responses.
	decorate func(v T, today time.Time) any
	// boardBound entities are written under the board lock and announce
	// board updates.
	boardBound bool
}

func registerResource[T any](g *echo.Group, path string, r resource[T]) {
	g.GET(path, r.listHandler)
	g.POST(path, r.createHandler)
	g.GET(path+"/:id", r.getHandler)
	g.PUT(path+"/:id", r.updateHandler)
	g.DELETE(path+"/:id", r.deleteHandler)
}

func (r resource[T]) presentOne(v T) any {
	if r.decorate == nil {
		return v
	}
	return r.decorate(v, r.h.today())
}

func (r resource[T]) listHandler(c echo.Context) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID

	var items []T
	err := metrics.Time("fetch", func() (err error) {
		items, err = r.list(ctx, userID)
		return err
	})
	if err != nil {
		return r.h.fail(c, "storage", err)
	}
	if r.filter != nil {
		items = r.filter(c, items)
	}
	metrics.Set("items_returned", len(items))
	if r.decorate != nil {
		today := r.h.today()
		views := make([]any, len(items))
		for i, v := range items {
			views[i] = r.decorate(v, today)
		}
		return c.JSON(http.StatusOK, listResponse[any]{Items: views})
	}
	return c.JSON(http.StatusOK, listResponse[T]{Items: items})
}

func (r resource[T]) getHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID := principalFrom(c).UserID
	v, err := r.get(ctx, userID, c.Param("id"))
	if err != nil {
		return r.h.fail(c, "storage", err)
	}
	return c.JSON(http.StatusOK, r.presentOne(v))
}

func (r resource[T]) createHandler(c echo.Context) error {
	return r.write(c, uuid.NewString(), false)
}

func (r resource[T]) updateHandler(c echo.Context) error {
	return r.write(c, c.Param("id"), true)
}

func (r resource[T]) write(c echo.Context, id string, update bool) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID

	var v T
	if err := decodeBody(c, &v); err != nil {
		return r.h.fail(c, "decode", err)
	}
	if r.boardBound {
		unlock := r.h.locks.lock(userID)
		defer unlock()
	}

	var existing *T
	if update {
		cur, err := r.get(ctx, userID, id)
		if err != nil {
			return r.h.fail(c, "storage", err)
		}
		existing = &cur
	}
	v, err := r.prepare(ctx, userID, id, v, existing)
	if err != nil {
		return r.h.fail(c, "prepare", err)
	}
	if err := metrics.Time("persist", func() error {
		return r.save(ctx, userID, v)
	}); err != nil {
		return r.h.fail(c, "storage", err)
	}

	eventType, status := domain.EntityCreated, http.StatusCreated
	if update {
		eventType, status = domain.EntityUpdated, http.StatusOK
	}
	if err := r.announce(c, userID, id, eventType, r.describe(v)); err != nil {
		return r.h.fail(c, "event", err)
	}
	return c.JSON(status, r.presentOne(v))
}

func (r resource[T]) deleteHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID := principalFrom(c).UserID
	id := c.Param("id")

	if r.boardBound {
		unlock := r.h.locks.lock(userID)
		defer unlock()
	}
	v, err := r.get(ctx, userID, id)
	if err != nil {
		return r.h.fail(c, "storage", err)
	}
	if err := r.remove(ctx, userID, id); err != nil {
		return r.h.fail(c, "storage", err)
	}
	if err := r.announce(c, userID, id, domain.EntityDeleted, r.describe(v)); err != nil {
		return r.h.fail(c, "event", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (r resource[T]) announce(c echo.Context, userID, id, eventType string, data domain.EntityChangedData) error {
	ev, err := newEvent(r.entityType, id, eventType, data)
	if err != nil {
		return err
	}
	kind := UpdateActivity
	if r.boardBound {
		kind = UpdateBoard
	}
	r.h.emit(c, userID, kind, ev)
	return nil
}

// canonical maps legacy status spellings onto S, leaving other values for
// validation to reject.
func canonical[S ~string](s S) S {
	if v, ok := domain.ParseStatus(string(s)).(S); ok {
		return v
	}
	return s
}

// clientName resolves the display name of a referenced client.
func (h *Handlers) clientName(ctx context.Context, userID, clientID, given string) (string, error) {
	if clientID == "" || given != "" {
		return given, nil
	}
	cl, err := h.store.GetClient(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Invalid("clientId", "unknown client "+clientID)
		}
		return "", err
	}
	return cl.Name, nil
}

func registerClients(g *echo.Group, h *Handlers) {
	registerResource(g, "/clients", resource[domain.Client]{
		h:          h,
		entityType: domain.EntityTypeClient,
		list:       h.store.ListClients,
		get:        h.store.GetClient,
		save:       h.store.SaveClient,
		remove:     h.store.DeleteClient,
		prepare:    h.prepareClient,
		describe: func(c domain.Client) domain.EntityChangedData {
			return domain.EntityChangedData{Name: c.Name, Status: c.Status}
		},
		filter: func(c echo.Context, items []domain.Client) []domain.Client {
			return derived.FilterClients(items, c.QueryParam("q"), c.QueryParam("status"))
		},
		boardBound: true,
	})
}

// prepareClient places new clients at the end of the first stage. Board
// placement and interactions are owned by the board endpoints, so updates
// keep the stored values.
func (h *Handlers) prepareClient(ctx context.Context, userID, id string, c domain.Client, existing *domain.Client) (domain.Client, error) {
	now := h.now().UTC()
	c.ID = id
	c.UpdatedAt = now
	if existing != nil {
		c.Stage, c.Position = existing.Stage, existing.Position
		c.Interactions = existing.Interactions
		c.CreatedAt = existing.CreatedAt
	} else {
		first := h.template.First()
		count, err := h.settleStage(ctx, userID, first)
		if err != nil {
			return c, err
		}
		c.Stage, c.Position = string(first), count
		c.CreatedAt = now
		for i := range c.Interactions {
			if c.Interactions[i].Timestamp.IsZero() {
				c.Interactions[i].Timestamp = now
			}
		}
	}
	return c, c.Validate()
}

func (h *Handlers) proposals() resource[domain.Proposal] {
	return resource[domain.Proposal]{
		h:          h,
		entityType: domain.EntityTypeProposal,
		list:       h.store.ListProposals,
		get:        h.store.GetProposal,
		save:       h.store.SaveProposal,
		remove:     h.store.DeleteProposal,
		prepare: func(ctx context.Context, userID, id string, p domain.Proposal, existing *domain.Proposal) (domain.Proposal, error) {
			p.ID = id
			p.Status = canonical(p.Status)
			p = p.Normalize()
			if p.CreatedAt == "" {
				if existing != nil {
					p.CreatedAt = existing.CreatedAt
				} else {
					p.CreatedAt = domain.FormatDate(h.today())
				}
			}
			name, err := h.clientName(ctx, userID, p.ClientID, p.ClientName)
			if err != nil {
				return p, err
			}
			p.ClientName = name
			p.UpdatedAt = h.now().UTC()
			return p, p.Validate()
		},
		describe: func(p domain.Proposal) domain.EntityChangedData {
			return domain.EntityChangedData{Name: p.Title, Status: string(p.Status)}
		},
		decorate: func(p domain.Proposal, today time.Time) any {
			v := proposalView{Proposal: p, Badge: derived.StatusBadge(p.Status)}
			if ind, ok := derived.ProposalExpiry(p, today); ok {
				v.Indicator = &ind
			}
			return v
		},
	}
}

func (h *Handlers) contracts() resource[domain.Contract] {
	return resource[domain.Contract]{
		h:          h,
		entityType: domain.EntityTypeContract,
		list:       h.store.ListContracts,
		get:        h.store.GetContract,
		save:       h.store.SaveContract,
		remove:     h.store.DeleteContract,
		prepare: func(ctx context.Context, userID, id string, k domain.Contract, existing *domain.Contract) (domain.Contract, error) {
			k.ID = id
			k.Status = canonical(k.Status)
			k = k.Normalize()
			// The proposal link is checked when it is set. Later status
			// changes of the proposal do not lock the contract.
			linked := existing != nil && k.ProposalID != "" && existing.ProposalID == k.ProposalID
			if linked && k.ClientID == "" {
				k.ClientID, k.ClientName = existing.ClientID, existing.ClientName
			}
			if k.ProposalID != "" && !linked {
				p, err := h.store.GetProposal(ctx, userID, k.ProposalID)
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					return k, err
				}
				if err != nil || p.Status != domain.ProposalAccepted {
					return k, domain.Invalid("proposalId", "must reference an accepted proposal")
				}
				if k.ClientID == "" {
					k.ClientID, k.ClientName = p.ClientID, p.ClientName
				}
			}
			name, err := h.clientName(ctx, userID, k.ClientID, k.ClientName)
			if err != nil {
				return k, err
			}
			k.ClientName = name
			k.UpdatedAt = h.now().UTC()
			return k, k.Validate()
		},
		describe: func(k domain.Contract) domain.EntityChangedData {
			return domain.EntityChangedData{Name: k.Title, Status: string(k.Status)}
		},
		decorate: func(k domain.Contract, today time.Time) any {
			v := contractView{Contract: k, Badge: derived.StatusBadge(k.Status)}
			if ind, ok := derived.ContractDeadline(k, today); ok {
				v.Indicator = &ind
			}
			return v
		},
	}
}

func (h *Handlers) transactions() resource[domain.Transaction] {
	return resource[domain.Transaction]{
		h:          h,
		entityType: domain.EntityTypeTx,
		list:       h.store.ListTransactions,
		get:        h.store.GetTransaction,
		save:       h.store.SaveTransaction,
		remove:     h.store.DeleteTransaction,
		prepare: func(_ context.Context, _, id string, t domain.Transaction, _ *domain.Transaction) (domain.Transaction, error) {
			t.ID = id
			t.Status = canonical(t.Status)
			t = t.Normalize()
			t.UpdatedAt = h.now().UTC()
			return t, t.Validate()
		},
		describe: func(t domain.Transaction) domain.EntityChangedData {
			return domain.EntityChangedData{Name: t.Description, Status: string(t.Status)}
		},
		decorate: func(t domain.Transaction, today time.Time) any {
			v := transactionView{Transaction: t, Badge: derived.StatusBadge(t.Status)}
			if ind, ok := derived.TransactionDue(t, today); ok {
				v.Indicator = &ind
			}
			return v
		},
	}
}

func (h *Handlers) services() resource[domain.Service] {
	return resource[domain.Service]{
		h:          h,
		entityType: domain.EntityTypeService,
		list:       h.store.ListServices,
		get:        h.store.GetService,
		save:       h.store.SaveService,
		remove:     h.store.DeleteService,
		prepare: func(_ context.Context, _, id string, s domain.Service, _ *domain.Service) (domain.Service, error) {
			s.ID = id
			s.UpdatedAt = h.now().UTC()
			return s, s.Validate()
		},
		describe: func(s domain.Service) domain.EntityChangedData {
			return domain.EntityChangedData{Name: s.Name}
		},
	}
}
