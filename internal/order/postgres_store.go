package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/advoflow/advoflow/internal/audit"
)

// PostgresStore persists orders in PostgreSQL. Updates run the version
// check, the row write, and the audit insert in one transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const orderColumns = `id, client_id, lawyer_id, case_ref, description,
	amount, platform_fee, tax_amount, charge_total, lawyer_amount, currency,
	status, charge_ref, transfer_group, release_eligible_at,
	dispute_id, dispute_raised_by, dispute_reason, dispute_outcome,
	dispute_note, dispute_opened_at, dispute_resolved_at,
	version, created_at, updated_at, funded_at, delivered_at, closed_at`

func (s *PostgresStore) Create(ctx context.Context, o *Order, rec *audit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var d Dispute
	if o.Dispute != nil {
		d = *o.Dispute
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		o.ID, o.ClientID, o.LawyerID, o.CaseRef, o.Description,
		o.Amount, o.PlatformFee, o.TaxAmount, o.ChargeTotal, o.LawyerAmount, o.Currency,
		string(o.Status), o.ChargeRef, o.TransferGroup, o.ReleaseEligibleAt,
		nullString(d.ID), nullString(d.RaisedBy), nullString(d.Reason),
		nullString(string(d.Outcome)), nullString(d.Note),
		nullTimeVal(d.OpenedAt), d.ResolvedAt,
		o.Version, o.CreatedAt, o.UpdatedAt, o.FundedAt, o.DeliveredAt, o.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if rec != nil {
		if err := audit.InsertTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *PostgresStore) GetByChargeRef(ctx context.Context, chargeRef string) (*Order, error) {
	if chargeRef == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE charge_ref = $1`, chargeRef)
	return scanOrder(row)
}

func (s *PostgresStore) Update(ctx context.Context, o *Order, expectedVersion int64, rec *audit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var d Dispute
	if o.Dispute != nil {
		d = *o.Dispute
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET
			status = $3, charge_ref = $4, release_eligible_at = $5,
			dispute_id = $6, dispute_raised_by = $7, dispute_reason = $8,
			dispute_outcome = $9, dispute_note = $10,
			dispute_opened_at = $11, dispute_resolved_at = $12,
			version = version + 1, updated_at = $13,
			funded_at = $14, delivered_at = $15, closed_at = $16
		WHERE id = $1 AND version = $2`,
		o.ID, expectedVersion,
		string(o.Status), o.ChargeRef, o.ReleaseEligibleAt,
		nullString(d.ID), nullString(d.RaisedBy), nullString(d.Reason),
		nullString(string(d.Outcome)), nullString(d.Note),
		nullTimeVal(d.OpenedAt), d.ResolvedAt,
		o.UpdatedAt, o.FundedAt, o.DeliveredAt, o.ClosedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	if rec != nil {
		if err := audit.InsertTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update order: %w", err)
	}
	o.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListByParty(ctx context.Context, partyID string, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE client_id = $1 OR lawyer_id = $1
		ORDER BY created_at DESC LIMIT $2`, partyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListReleaseEligible(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND release_eligible_at IS NOT NULL AND release_eligible_at <= $2
		ORDER BY release_eligible_at ASC LIMIT $3`,
		string(StatusDelivered), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list release eligible: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	o := &Order{}
	var status string
	var caseRef, description, chargeRef, transferGroup sql.NullString
	var dID, dRaisedBy, dReason, dOutcome, dNote sql.NullString
	var dOpenedAt, dResolvedAt sql.NullTime
	var releaseAt, fundedAt, deliveredAt, closedAt sql.NullTime

	err := row.Scan(&o.ID, &o.ClientID, &o.LawyerID, &caseRef, &description,
		&o.Amount, &o.PlatformFee, &o.TaxAmount, &o.ChargeTotal, &o.LawyerAmount, &o.Currency,
		&status, &chargeRef, &transferGroup, &releaseAt,
		&dID, &dRaisedBy, &dReason, &dOutcome, &dNote, &dOpenedAt, &dResolvedAt,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &fundedAt, &deliveredAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Status = Status(status)
	o.CaseRef = caseRef.String
	o.Description = description.String
	o.ChargeRef = chargeRef.String
	o.TransferGroup = transferGroup.String
	o.ReleaseEligibleAt = timePtr(releaseAt)
	o.FundedAt = timePtr(fundedAt)
	o.DeliveredAt = timePtr(deliveredAt)
	o.ClosedAt = timePtr(closedAt)

	if dID.Valid && dID.String != "" {
		o.Dispute = &Dispute{
			ID:         dID.String,
			RaisedBy:   dRaisedBy.String,
			Reason:     dReason.String,
			Outcome:    DisputeOutcome(dOutcome.String),
			Note:       dNote.String,
			OpenedAt:   dOpenedAt.Time,
			ResolvedAt: timePtr(dResolvedAt),
		}
	}
	return o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimeVal(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time
	return &tt
}
