//go:build integration

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advoflow/advoflow/internal/testutil"
)

func TestPostgresRecorder_AppendAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	rec := NewPostgresRecorder(db)
	ctx := context.Background()

	first := NewRecord(ctx, "ord_pg1", ActionOrderCreated)
	first.Amount = 12000
	first.Currency = "usd"
	require.NoError(t, rec.Append(ctx, first))

	second := NewRecord(ctx, "ord_pg1", ActionOrderTransition)
	second.FromStatus = "created"
	second.ToStatus = "funded"
	require.NoError(t, rec.Append(ctx, second))

	require.NoError(t, rec.Append(ctx, NewRecord(ctx, "ord_other", ActionOrderCreated)))

	records, err := rec.ListByOrder(ctx, "ord_pg1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Oldest first.
	assert.Equal(t, ActionOrderCreated, records[0].Action)
	assert.Equal(t, ActionOrderTransition, records[1].Action)
	assert.Equal(t, int64(12000), records[0].Amount)
}

func TestPostgresRecorder_AppendNote(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	rec := NewPostgresRecorder(db)
	ctx := context.Background()

	r := NewRecord(ctx, "ord_pg2", ActionDisputeResolved)
	r.Note = "initial ruling"
	require.NoError(t, rec.Append(ctx, r))

	require.NoError(t, rec.AppendNote(ctx, r.ID, "client contacted"))

	records, err := rec.ListByOrder(ctx, "ord_pg2", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Note, "initial ruling")
	assert.Contains(t, records[0].Note, "client contacted")

	assert.ErrorIs(t, rec.AppendNote(ctx, "txa_missing", "x"), ErrNotFound)
}
