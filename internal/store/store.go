// Package store persists per-connection OAuth credentials so refreshed
// tokens survive restarts. Two backends exist: Postgres for deployments with
// a database, and a YAML state file next to the config for everything else.
package store

import (
	"context"
	"errors"

	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// ErrNotFound is returned when no credential exists for a connection.
var ErrNotFound = errors.New("credential not found")

// Store persists connection credentials.
type Store interface {
	// SaveCredential inserts or replaces the credential for a connection.
	SaveCredential(ctx context.Context, connectionID string, cred domain.Credential) error

	// GetCredential returns the stored credential, or ErrNotFound.
	GetCredential(ctx context.Context, connectionID string) (domain.Credential, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close()
}
