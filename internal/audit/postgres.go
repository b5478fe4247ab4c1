package audit

import (
	"context"
	"database/sql"
	"fmt"
)

const insertSQL = `
	INSERT INTO audit_records
		(id, order_id, action, actor_type, actor_id, from_status, to_status,
		 amount, currency, reference, detail, note, risk_score, request_id,
		 ip_address, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())`

// InsertTx appends a record inside an existing transaction. Order
// stores use this so a state change and its audit row commit as one
// atomic unit.
func InsertTx(ctx context.Context, tx *sql.Tx, rec *Record) error {
	_, err := tx.ExecContext(ctx, insertSQL,
		rec.ID, rec.OrderID, rec.Action, rec.ActorType, rec.ActorID,
		rec.FromStatus, rec.ToStatus, rec.Amount, rec.Currency,
		rec.Reference, rec.Detail, rec.Note, rec.RiskScore, rec.RequestID, rec.IPAddress)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// PostgresRecorder writes audit records to PostgreSQL.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates an audit recorder backed by PostgreSQL.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

var _ Recorder = (*PostgresRecorder)(nil)

func (r *PostgresRecorder) Append(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx, insertSQL,
		rec.ID, rec.OrderID, rec.Action, rec.ActorType, rec.ActorID,
		rec.FromStatus, rec.ToStatus, rec.Amount, rec.Currency,
		rec.Reference, rec.Detail, rec.Note, rec.RiskScore, rec.RequestID, rec.IPAddress)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) ListByOrder(ctx context.Context, orderID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, action, actor_type, COALESCE(actor_id, ''),
			COALESCE(from_status, ''), COALESCE(to_status, ''),
			amount, COALESCE(currency, ''), COALESCE(reference, ''),
			COALESCE(detail, ''), COALESCE(note, ''), risk_score,
			COALESCE(request_id, ''), COALESCE(ip_address, ''), created_at
		FROM audit_records
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.Action, &rec.ActorType, &rec.ActorID,
			&rec.FromStatus, &rec.ToStatus, &rec.Amount, &rec.Currency, &rec.Reference,
			&rec.Detail, &rec.Note, &rec.RiskScore, &rec.RequestID, &rec.IPAddress, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRecorder) AppendNote(ctx context.Context, recordID, note string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE audit_records
		SET note = CASE WHEN note IS NULL OR note = '' THEN $2
		                ELSE note || E'\n' || $2 END
		WHERE id = $1`, recordID, note)
	if err != nil {
		return fmt.Errorf("append audit note: %w", err)
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
