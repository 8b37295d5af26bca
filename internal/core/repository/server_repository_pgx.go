package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/metaboard/internal/core/domain"
	"github.com/duynhne/metaboard/internal/secrets"
)

// PgxServerRepository implements domain.ServerRepository using pgxpool.
// Stored Metabase passwords are sealed before they reach Postgres and
// opened on read, so the plain secret exists only in memory.
type PgxServerRepository struct {
	pool   *pgxpool.Pool
	sealer *secrets.Sealer
}

// NewServerRepository creates a new PgxServerRepository.
func NewServerRepository(pool *pgxpool.Pool, sealer *secrets.Sealer) *PgxServerRepository {
	return &PgxServerRepository{pool: pool, sealer: sealer}
}

// Lookup returns the credential for the (ownerUserID, serverID) pair.
// Returns (nil, nil) when the user has no such server registered.
func (r *PgxServerRepository) Lookup(ctx context.Context, ownerUserID, serverID int) (*domain.ServerCredential, error) {
	query := `
		SELECT s.id, s.host_url, us.email, us.password_sealed, us.is_source
		FROM user_metabase_servers us
		JOIN metabase_servers s ON us.server_id = s.id
		WHERE us.user_id = $1 AND us.server_id = $2
	`

	var (
		cred   domain.ServerCredential
		sealed []byte
	)
	err := r.pool.QueryRow(ctx, query, ownerUserID, serverID).Scan(
		&cred.ServerID, &cred.HostURL, &cred.Email, &sealed, &cred.IsSource,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	secret, err := r.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open sealed credential for server %d: %w", serverID, err)
	}

	cred.Secret = secret
	cred.OwnerUserID = ownerUserID
	return &cred, nil
}

// ListByUser returns all servers registered by the given user.
func (r *PgxServerRepository) ListByUser(ctx context.Context, ownerUserID int) ([]domain.ServerCredential, error) {
	query := `
		SELECT s.id, s.host_url, us.email, us.password_sealed, us.is_source
		FROM user_metabase_servers us
		JOIN metabase_servers s ON us.server_id = s.id
		WHERE us.user_id = $1
		ORDER BY s.id
	`

	rows, err := r.pool.Query(ctx, query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.ServerCredential
	for rows.Next() {
		var (
			cred   domain.ServerCredential
			sealed []byte
		)
		if err := rows.Scan(&cred.ServerID, &cred.HostURL, &cred.Email, &sealed, &cred.IsSource); err != nil {
			return nil, err
		}
		secret, err := r.sealer.Open(sealed)
		if err != nil {
			return nil, fmt.Errorf("open sealed credential for server %d: %w", cred.ServerID, err)
		}
		cred.Secret = secret
		cred.OwnerUserID = ownerUserID
		creds = append(creds, cred)
	}

	return creds, rows.Err()
}

// Upsert registers the server host and the user's credentials for it.
// The host row is shared across users; the credential row is per user.
func (r *PgxServerRepository) Upsert(ctx context.Context, ownerUserID int, hostURL, email, secret string, isSource bool) (int, error) {
	sealed, err := r.sealer.Seal(secret)
	if err != nil {
		return 0, fmt.Errorf("seal credential: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var serverID int
	err = tx.QueryRow(ctx, `
		INSERT INTO metabase_servers (host_url) VALUES ($1)
		ON CONFLICT (host_url) DO UPDATE SET host_url = EXCLUDED.host_url
		RETURNING id
	`, hostURL).Scan(&serverID)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_metabase_servers (user_id, server_id, email, password_sealed, is_source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, server_id) DO UPDATE SET
			email = EXCLUDED.email,
			password_sealed = EXCLUDED.password_sealed,
			is_source = EXCLUDED.is_source
	`, ownerUserID, serverID, email, sealed, isSource)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return serverID, nil
}

// Delete removes the user's association with the server, and the server row
// itself when no other user still references it.
func (r *PgxServerRepository) Delete(ctx context.Context, ownerUserID, serverID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM user_metabase_servers WHERE user_id = $1 AND server_id = $2`,
		ownerUserID, serverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	var remaining int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_metabase_servers WHERE server_id = $1`,
		serverID).Scan(&remaining)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM metabase_servers WHERE id = $1`, serverID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
