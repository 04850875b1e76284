package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"bizdesk/domain"
)

// Tables names every table and queue the service uses.
type Tables struct {
	Clients      string
	Proposals    string
	Contracts    string
	Transactions string
	Services     string
	Activity     string
	EventsQueue  string
}

func (t Tables) all() []string {
	return []string{t.Clients, t.Proposals, t.Contracts, t.Transactions, t.Services, t.Activity}
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
	GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error)
}

// Storage provides access to the table service and the events queue. Every
// row is partitioned by user id.
type Storage struct {
	svc              *aztables.ServiceClient
	names            Tables
	clients          *aztables.Client
	proposals        *aztables.Client
	contracts        *aztables.Client
	transactions     *aztables.Client
	services         *aztables.Client
	activity         *aztables.Client
	eventsQueue      queueClient
	rawQueue         *azqueue.QueueClient
	queueConcurrency int
}

// New creates a Storage instance from the given connection string.
func New(connStr string, names Tables) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, names.EventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		svc:              svc,
		names:            names,
		clients:          svc.NewClient(names.Clients),
		proposals:        svc.NewClient(names.Proposals),
		contracts:        svc.NewClient(names.Contracts),
		transactions:     svc.NewClient(names.Transactions),
		services:         svc.NewClient(names.Services),
		activity:         svc.NewClient(names.Activity),
		eventsQueue:      eq,
		rawQueue:         eq,
		queueConcurrency: defaultQueueConcurrencyForHost(),
	}, nil
}

// SetQueueConcurrency bounds parallel queue sends. Values below one fall back
// to the host default.
func (s *Storage) SetQueueConcurrency(n int) {
	if n < 1 {
		n = defaultQueueConcurrencyForHost()
	}
	s.queueConcurrency = n
}

// Init creates every table and the events queue, ignoring ones that exist.
func (s *Storage) Init(ctx context.Context) error {
	for _, name := range s.names.all() {
		if name == "" {
			continue
		}
		if _, err := s.svc.NewClient(name).CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return fmt.Errorf("create table %s: %w", name, err)
			}
		}
	}
	if s.rawQueue != nil {
		if _, err := s.rawQueue.Create(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
				return fmt.Errorf("create queue %s: %w", s.names.EventsQueue, err)
			}
		}
	}
	return nil
}

// Ping checks that the events queue is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.eventsQueue.GetProperties(ctx, nil)
	return err
}

// row is the table layout shared by every entity: the domain value is kept
// as JSON in Data. Client rows also carry their board placement as columns
// so moves can merge them without rewriting Data.
type row struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Data         string `json:"Data,omitempty"`
	Stage        string `json:"Stage,omitempty"`
	Position     *int   `json:"Position,omitempty"`
}

func partitionFilter(userID string) string {
	return "PartitionKey eq '" + escapeFilter(userID) + "'"
}

func escapeFilter(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func decodeRow(data []byte) (row, error) {
	var r row
	if err := sonic.Unmarshal(data, &r); err != nil {
		return row{}, err
	}
	return r, nil
}

func decodeValue[T any](r row) (T, error) {
	var v T
	if err := sonic.UnmarshalString(r.Data, &v); err != nil {
		return v, fmt.Errorf("decode row %s: %w", r.RowKey, err)
	}
	return v, nil
}

func listRows[T any](ctx context.Context, tbl *aztables.Client, userID string, decode func(row) (T, error)) ([]T, error) {
	filter := partitionFilter(userID)
	pager := tbl.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []T{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			r, err := decodeRow(e)
			if err != nil {
				return nil, err
			}
			v, err := decode(r)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func getRow[T any](ctx context.Context, tbl *aztables.Client, userID, id string, decode func(row) (T, error)) (T, error) {
	var zero T
	resp, err := tbl.GetEntity(ctx, userID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return zero, domain.ErrNotFound
		}
		return zero, err
	}
	r, err := decodeRow(resp.Value)
	if err != nil {
		return zero, err
	}
	return decode(r)
}

func putRow(ctx context.Context, tbl *aztables.Client, r row) error {
	payload, err := sonic.Marshal(r)
	if err != nil {
		return err
	}
	_, err = tbl.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func deleteRow(ctx context.Context, tbl *aztables.Client, userID, id string) error {
	_, err := tbl.DeleteEntity(ctx, userID, id, nil)
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

func encodeRow(userID, id string, v any) (row, error) {
	data, err := sonic.MarshalString(v)
	if err != nil {
		return row{}, err
	}
	return row{PartitionKey: userID, RowKey: id, Data: data}, nil
}
