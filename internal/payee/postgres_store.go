package payee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Put(ctx context.Context, p *Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payees (lawyer_id, display_name, email, bar_id, jurisdiction,
			account_ref, verified, onboarded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (lawyer_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			bar_id = EXCLUDED.bar_id,
			jurisdiction = EXCLUDED.jurisdiction,
			account_ref = EXCLUDED.account_ref,
			verified = EXCLUDED.verified,
			updated_at = EXCLUDED.updated_at`,
		p.LawyerID, p.DisplayName, p.Email, p.BarID, p.Jurisdiction,
		p.AccountRef, p.Verified, p.OnboardedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert payee: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, lawyerID string) (*Profile, error) {
	p := &Profile{}
	err := s.db.QueryRowContext(ctx, `
		SELECT lawyer_id, display_name, email, COALESCE(bar_id, ''),
			COALESCE(jurisdiction, ''), COALESCE(account_ref, ''),
			verified, onboarded_at, updated_at
		FROM payees WHERE lawyer_id = $1`, lawyerID).
		Scan(&p.LawyerID, &p.DisplayName, &p.Email, &p.BarID,
			&p.Jurisdiction, &p.AccountRef, &p.Verified, &p.OnboardedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select payee: %w", err)
	}
	return p, nil
}
