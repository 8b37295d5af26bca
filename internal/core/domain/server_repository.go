package domain

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ServerCredential is one user's registered Metabase server: the shared host
// plus that user's own login for it. Looked up by the (ownerUserID, serverID)
// composite key. The Secret field holds the decrypted password and exists in
// memory only; at rest it is sealed ciphertext.
type ServerCredential struct {
	ServerID    int
	HostURL     string
	Email       string
	Secret      string
	OwnerUserID int
	IsSource    bool
}

// ServerRepository defines the data-access contract for the credential store.
// The fan-out coordinator only reads; CRUD comes from the server handlers.
type ServerRepository interface {
	// Lookup returns the credential for the (ownerUserID, serverID) pair.
	// Returns (nil, nil) when the user has no such server registered.
	Lookup(ctx context.Context, ownerUserID, serverID int) (*ServerCredential, error)

	// ListByUser returns all servers registered by the given user.
	ListByUser(ctx context.Context, ownerUserID int) ([]ServerCredential, error)

	// Upsert registers a server host (shared across users, keyed by host URL)
	// and the user's credentials for it, creating or updating both rows.
	// Returns the server ID.
	Upsert(ctx context.Context, ownerUserID int, hostURL, email, secret string, isSource bool) (int, error)

	// Delete removes the user's association with the server, and the server
	// row itself when no other user still references it.
	// Returns ErrNotFound when the association does not exist.
	Delete(ctx context.Context, ownerUserID, serverID int) error
}
