package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists payouts in PostgreSQL. The unique constraint
// on order_id is the hard guarantee against double payouts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const payoutColumns = `id, order_id, lawyer_id, destination, amount, fee, currency,
	status, transfer_ref, failure_reason, on_hold, hold_until, hold_reason,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *Payout) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.OrderID, p.LawyerID, p.Destination, p.Amount, p.Fee, p.Currency,
		string(p.Status), p.TransferRef, p.FailureReason,
		p.OnHold, p.HoldUntil, p.HoldReason, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Payout, error) {
	return s.getOne(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
}

func (s *PostgresStore) GetByOrder(ctx context.Context, orderID string) (*Payout, error) {
	return s.getOne(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE order_id = $1`, orderID)
}

func (s *PostgresStore) GetByTransferRef(ctx context.Context, transferRef string) (*Payout, error) {
	if transferRef == "" {
		return nil, ErrNotFound
	}
	return s.getOne(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE transfer_ref = $1`, transferRef)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg any) (*Payout, error) {
	p := &Payout{}
	var status string
	var transferRef, failureReason, holdReason sql.NullString
	var holdUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.OrderID, &p.LawyerID, &p.Destination, &p.Amount, &p.Fee, &p.Currency,
		&status, &transferRef, &failureReason,
		&p.OnHold, &holdUntil, &holdReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select payout: %w", err)
	}
	p.Status = Status(status)
	p.TransferRef = transferRef.String
	p.FailureReason = failureReason.String
	p.HoldReason = holdReason.String
	if holdUntil.Valid {
		t := holdUntil.Time
		p.HoldUntil = &t
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *Payout) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payouts SET status = $2, transfer_ref = $3, failure_reason = $4,
			on_hold = $5, hold_until = $6, hold_reason = $7, updated_at = $8
		WHERE id = $1`,
		p.ID, string(p.Status), p.TransferRef, p.FailureReason,
		p.OnHold, p.HoldUntil, p.HoldReason, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByLawyer(ctx context.Context, lawyerID string, limit int) ([]*Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE lawyer_id = $1 ORDER BY created_at DESC LIMIT $2`, lawyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Payout
	for rows.Next() {
		p := &Payout{}
		var status string
		var transferRef, failureReason, holdReason sql.NullString
		var holdUntil sql.NullTime
		if err := rows.Scan(&p.ID, &p.OrderID, &p.LawyerID, &p.Destination, &p.Amount, &p.Fee, &p.Currency,
			&status, &transferRef, &failureReason,
			&p.OnHold, &holdUntil, &holdReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.Status = Status(status)
		p.TransferRef = transferRef.String
		p.FailureReason = failureReason.String
		p.HoldReason = holdReason.String
		if holdUntil.Valid {
			t := holdUntil.Time
			p.HoldUntil = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
