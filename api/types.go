package api

import (
	"context"

	"bizdesk/domain"
	"bizdesk/storage"
)

// Storage abstracts persistence for handlers.
type Storage = storage.Backend

// InvalidContinuationTokenError is returned when a supplied pagination token is malformed or expired.
type InvalidContinuationTokenError interface {
	error
	InvalidContinuationToken()
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   domain.Role
}

// Authenticator is implemented by types able to resolve the caller from the
// Authorization header.
type Authenticator interface {
	PrincipalFromAuthHeader(string) (Principal, error)
}

// Deduper prevents processing of duplicate board moves.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
	// Complete stores the response of a finished request under its key.
	Complete(ctx context.Context, userID, key string, response []byte) error
	// Response returns the stored response. ok is false while the first
	// request holding the key is still running.
	Response(ctx context.Context, userID, key string) (response []byte, ok bool, err error)
}

// Notifier fans a board change out to every stream subscriber of the user,
// on this instance and others.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind UpdateKind) error
}
