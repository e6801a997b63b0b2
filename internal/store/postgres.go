package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/donaldgifford/shopmon/pkg/types"
)

const defaultPoolSize = 5

// PostgresStore implements Store using pgxpool (connection-pooled
// PostgreSQL). Methods require live Postgres and are covered by the
// integration tests.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore with connection pooling.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	cfg.MaxConns = defaultPoolSize

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close gracefully shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending SQL schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.pool)
}

const queryUpsertCredential = `
INSERT INTO credentials (connection_id, access_token, refresh_token, expires_at, updated_at)
VALUES (@connection_id, @access_token, @refresh_token, @expires_at, now())
ON CONFLICT (connection_id) DO UPDATE SET
	access_token  = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_at    = EXCLUDED.expires_at,
	updated_at    = now()`

const queryGetCredential = `
SELECT access_token, refresh_token, expires_at
FROM credentials
WHERE connection_id = $1`

// SaveCredential implements Store.
func (s *PostgresStore) SaveCredential(ctx context.Context, connectionID string, cred domain.Credential) error {
	args := pgx.NamedArgs{
		"connection_id": connectionID,
		"access_token":  cred.AccessToken,
		"refresh_token": cred.RefreshToken,
		"expires_at":    cred.ExpiresAt,
	}

	if _, err := s.pool.Exec(ctx, queryUpsertCredential, args); err != nil {
		return fmt.Errorf("upserting credential for %s: %w", connectionID, err)
	}
	return nil
}

// GetCredential implements Store.
func (s *PostgresStore) GetCredential(ctx context.Context, connectionID string) (domain.Credential, error) {
	var cred domain.Credential
	err := s.pool.QueryRow(ctx, queryGetCredential, connectionID).Scan(
		&cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("getting credential for %s: %w", connectionID, err)
	}
	return cred, nil
}
