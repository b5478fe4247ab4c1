package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Store remembers which gateway event IDs have been processed.
type Store interface {
	// FirstDelivery records the event ID and reports whether this is
	// the first time it has been seen.
	FirstDelivery(ctx context.Context, eventID string) (bool, error)
	// Forget releases an event ID so the gateway's retry of a failed
	// delivery can be processed again.
	Forget(ctx context.Context, eventID string) error
}

// MemoryStore keeps seen event IDs in memory.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryStore creates an empty in-memory dedupe store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) FirstDelivery(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[eventID]; ok {
		return false, nil
	}
	s.seen[eventID] = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) Forget(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, eventID)
	return nil
}

// PostgresStore records seen event IDs in PostgreSQL, so dedupe holds
// across instances and restarts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a dedupe store backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) FirstDelivery(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, received_at)
		VALUES ($1, NOW())
		ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("forget webhook event: %w", err)
	}
	return nil
}
