package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"bizdesk/domain"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// InvalidTokenError reports a continuation token this store did not issue.
type InvalidTokenError struct {
	Token string
}

func (e *InvalidTokenError) Error() string {
	return "invalid continuation token"
}

// InvalidContinuationToken marks the error for handlers.
func (*InvalidTokenError) InvalidContinuationToken() {}

// activityRowKey sorts newest first; the table service orders by row key.
func activityRowKey(a domain.Activity) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-a.At.UnixNano(), a.ID)
}

// AppendActivity stores a projected activity row. Rewriting the same event
// yields the same row, so replays are harmless.
func (s *Storage) AppendActivity(ctx context.Context, userID string, a domain.Activity) error {
	r, err := encodeRow(userID, activityRowKey(a), a)
	if err != nil {
		return err
	}
	return putRow(ctx, s.activity, r)
}

// FetchActivity returns up to limit activity rows, newest first, and a token
// for the next page. An empty token starts from the newest row.
func (s *Storage) FetchActivity(ctx context.Context, userID, continuationToken string, limit int) ([]domain.Activity, string, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	top := int32(limit)
	filter := partitionFilter(userID)
	opts := &aztables.ListEntitiesOptions{Filter: &filter, Top: &top}
	if continuationToken != "" {
		rk, err := decodeToken(continuationToken)
		if err != nil {
			return nil, "", err
		}
		pk := userID
		opts.NextPartitionKey, opts.NextRowKey = &pk, &rk
	}

	pager := s.activity.NewListEntitiesPager(opts)
	items := []domain.Activity{}
	if !pager.More() {
		return items, "", nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, e := range resp.Entities {
		r, err := decodeRow(e)
		if err != nil {
			return nil, "", err
		}
		a, err := decodeValue[domain.Activity](r)
		if err != nil {
			return nil, "", err
		}
		items = append(items, a)
	}
	next := ""
	if resp.NextRowKey != nil && resp.NextPartitionKey != nil && *resp.NextPartitionKey == userID {
		next = encodeToken(*resp.NextRowKey)
	}
	return items, next, nil
}

func encodeToken(rowKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rowKey))
}

func decodeToken(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) == 0 || !strings.Contains(string(raw), "_") {
		return "", &InvalidTokenError{Token: token}
	}
	return string(raw), nil
}
