package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"praman/internal/vc/models"
	"praman/pkg/platform/sentinel"
)

// PostgresStore persists revocations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed revocation store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, revocation models.Revocation) error {
	query := `
		INSERT INTO credential_revocations (credential_id, issuer_did, reason, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (credential_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		revocation.CredentialID.String(),
		revocation.IssuerDID,
		revocation.Reason,
		revocation.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("save revocation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save revocation: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id models.CredentialID) (models.Revocation, error) {
	query := `
		SELECT credential_id, issuer_did, reason, revoked_at
		FROM credential_revocations
		WHERE credential_id = $1
	`
	var r models.Revocation
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(&r.CredentialID, &r.IssuerDID, &r.Reason, &r.RevokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Revocation{}, sentinel.ErrNotFound
		}
		return models.Revocation{}, fmt.Errorf("find revocation: %w", err)
	}
	r.RevokedAt = r.RevokedAt.UTC()
	return r, nil
}
