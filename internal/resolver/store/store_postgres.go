package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"praman/internal/did"
	"praman/internal/resolver/models"
	"praman/pkg/platform/sentinel"
)

// PostgresStore persists registrations in the did_registrations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, reg models.Registration) error {
	services, err := json.Marshal(servicesOrEmpty(reg.Services))
	if err != nil {
		return fmt.Errorf("marshal services: %w", err)
	}
	query := `
		INSERT INTO did_registrations (did, key_type, public_key, services, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (did) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		reg.DID.String(),
		string(reg.KeyType),
		reg.PublicKey,
		string(services),
		reg.CreatedAt,
		reg.UpdatedAt,
		reg.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("save registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save registration: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByDID(ctx context.Context, d did.DID) (models.Registration, error) {
	query := `
		SELECT did, key_type, public_key, services, created_at, updated_at, deactivated_at
		FROM did_registrations
		WHERE did = $1
	`
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, query, d.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Registration{}, sentinel.ErrNotFound
		}
		return models.Registration{}, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

// Deactivate sets deactivated_at once; COALESCE keeps the first timestamp.
func (s *PostgresStore) Deactivate(ctx context.Context, d did.DID, at time.Time) (models.Registration, error) {
	query := `
		UPDATE did_registrations
		SET deactivated_at = COALESCE(deactivated_at, $2),
		    updated_at = CASE WHEN deactivated_at IS NULL THEN $2 ELSE updated_at END
		WHERE did = $1
		RETURNING did, key_type, public_key, services, created_at, updated_at, deactivated_at
	`
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, query, d.String(), at.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Registration{}, sentinel.ErrNotFound
		}
		return models.Registration{}, fmt.Errorf("deactivate registration: %w", err)
	}
	return reg, nil
}

func scanRegistration(row *sql.Row) (models.Registration, error) {
	var (
		reg         models.Registration
		rawDID      string
		keyType     string
		services    []byte
		deactivated sql.NullTime
	)
	if err := row.Scan(&rawDID, &keyType, &reg.PublicKey, &services, &reg.CreatedAt, &reg.UpdatedAt, &deactivated); err != nil {
		return models.Registration{}, err
	}
	reg.DID = did.DID(rawDID)
	reg.KeyType = models.KeyType(keyType)
	if len(services) > 0 {
		if err := json.Unmarshal(services, &reg.Services); err != nil {
			return models.Registration{}, fmt.Errorf("decode services: %w", err)
		}
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	if deactivated.Valid {
		t := deactivated.Time.UTC()
		reg.DeactivatedAt = &t
	}
	return reg, nil
}

func servicesOrEmpty(s []models.Service) []models.Service {
	if s == nil {
		return []models.Service{}
	}
	return s
}
