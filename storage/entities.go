package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"bizdesk/domain"
	"bizdesk/pipeline"
)

// maxBatch is the table service limit of actions per transaction.
const maxBatch = 100

func decodeClient(r row) (domain.Client, error) {
	c, err := decodeValue[domain.Client](r)
	if err != nil {
		return c, err
	}
	if r.Stage != "" {
		c.Stage = r.Stage
	}
	if r.Position != nil {
		c.Position = *r.Position
	}
	c.ID = r.RowKey
	return c, nil
}

func clientRow(userID string, c domain.Client) (row, error) {
	r, err := encodeRow(userID, c.ID, c)
	if err != nil {
		return row{}, err
	}
	pos := c.Position
	r.Stage, r.Position = c.Stage, &pos
	return r, nil
}

// ListClients returns every client of the user.
func (s *Storage) ListClients(ctx context.Context, userID string) ([]domain.Client, error) {
	return listRows(ctx, s.clients, userID, decodeClient)
}

// GetClient returns one client or domain.ErrNotFound.
func (s *Storage) GetClient(ctx context.Context, userID, id string) (domain.Client, error) {
	return getRow(ctx, s.clients, userID, id, decodeClient)
}

// SaveClient creates or replaces a client, placement columns included.
func (s *Storage) SaveClient(ctx context.Context, userID string, c domain.Client) error {
	r, err := clientRow(userID, c)
	if err != nil {
		return err
	}
	return putRow(ctx, s.clients, r)
}

func (s *Storage) DeleteClient(ctx context.Context, userID, id string) error {
	return deleteRow(ctx, s.clients, userID, id)
}

// UpdatePlacements merges the stage and position columns of the given cards
// in batches. Rows are otherwise left untouched.
func (s *Storage) UpdatePlacements(ctx context.Context, userID string, placements []pipeline.Placement) error {
	for start := 0; start < len(placements); start += maxBatch {
		end := min(start+maxBatch, len(placements))
		actions, err := placementActions(userID, placements[start:end])
		if err != nil {
			return err
		}
		if _, err := s.clients.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	return nil
}

func placementActions(userID string, placements []pipeline.Placement) ([]aztables.TransactionAction, error) {
	actions := make([]aztables.TransactionAction, 0, len(placements))
	for _, p := range placements {
		pos := p.Position
		payload, err := sonic.Marshal(row{
			PartitionKey: userID,
			RowKey:       string(p.CardID),
			Stage:        string(p.Stage),
			Position:     &pos,
		})
		if err != nil {
			return nil, err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
		})
	}
	return actions, nil
}

func decodeProposal(r row) (domain.Proposal, error) {
	p, err := decodeValue[domain.Proposal](r)
	p.ID = r.RowKey
	return p, err
}

func (s *Storage) ListProposals(ctx context.Context, userID string) ([]domain.Proposal, error) {
	return listRows(ctx, s.proposals, userID, decodeProposal)
}

func (s *Storage) GetProposal(ctx context.Context, userID, id string) (domain.Proposal, error) {
	return getRow(ctx, s.proposals, userID, id, decodeProposal)
}

func (s *Storage) SaveProposal(ctx context.Context, userID string, p domain.Proposal) error {
	r, err := encodeRow(userID, p.ID, p)
	if err != nil {
		return err
	}
	return putRow(ctx, s.proposals, r)
}

func (s *Storage) DeleteProposal(ctx context.Context, userID, id string) error {
	return deleteRow(ctx, s.proposals, userID, id)
}

func decodeContract(r row) (domain.Contract, error) {
	c, err := decodeValue[domain.Contract](r)
	c.ID = r.RowKey
	return c, err
}

func (s *Storage) ListContracts(ctx context.Context, userID string) ([]domain.Contract, error) {
	return listRows(ctx, s.contracts, userID, decodeContract)
}

func (s *Storage) GetContract(ctx context.Context, userID, id string) (domain.Contract, error) {
	return getRow(ctx, s.contracts, userID, id, decodeContract)
}

func (s *Storage) SaveContract(ctx context.Context, userID string, c domain.Contract) error {
	r, err := encodeRow(userID, c.ID, c)
	if err != nil {
		return err
	}
	return putRow(ctx, s.contracts, r)
}

func (s *Storage) DeleteContract(ctx context.Context, userID, id string) error {
	return deleteRow(ctx, s.contracts, userID, id)
}

func decodeTransaction(r row) (domain.Transaction, error) {
	t, err := decodeValue[domain.Transaction](r)
	t.ID = r.RowKey
	return t, err
}

func (s *Storage) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return listRows(ctx, s.transactions, userID, decodeTransaction)
}

func (s *Storage) GetTransaction(ctx context.Context, userID, id string) (domain.Transaction, error) {
	return getRow(ctx, s.transactions, userID, id, decodeTransaction)
}

func (s *Storage) SaveTransaction(ctx context.Context, userID string, t domain.Transaction) error {
	r, err := encodeRow(userID, t.ID, t)
	if err != nil {
		return err
	}
	return putRow(ctx, s.transactions, r)
}

func (s *Storage) DeleteTransaction(ctx context.Context, userID, id string) error {
	return deleteRow(ctx, s.transactions, userID, id)
}

func decodeService(r row) (domain.Service, error) {
	svc, err := decodeValue[domain.Service](r)
	svc.ID = r.RowKey
	return svc, err
}

func (s *Storage) ListServices(ctx context.Context, userID string) ([]domain.Service, error) {
	return listRows(ctx, s.services, userID, decodeService)
}

func (s *Storage) GetService(ctx context.Context, userID, id string) (domain.Service, error) {
	return getRow(ctx, s.services, userID, id, decodeService)
}

func (s *Storage) SaveService(ctx context.Context, userID string, svc domain.Service) error {
	r, err := encodeRow(userID, svc.ID, svc)
	if err != nil {
		return err
	}
	return putRow(ctx, s.services, r)
}

func (s *Storage) DeleteService(ctx context.Context, userID, id string) error {
	return deleteRow(ctx, s.services, userID, id)
}
