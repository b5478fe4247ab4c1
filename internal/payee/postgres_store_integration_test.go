//go:build integration

package payee

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advoflow/advoflow/internal/testutil"
)

func TestPostgresPayee_UpsertAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &Profile{
		LawyerID:     "lw_pg1",
		DisplayName:  "A. Counsel",
		Email:        "counsel@example.com",
		BarID:        "BAR-4412",
		Jurisdiction: "NY",
		OnboardedAt:  now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.Put(ctx, p))

	got, err := store.Get(ctx, "lw_pg1")
	require.NoError(t, err)
	assert.Equal(t, "A. Counsel", got.DisplayName)
	assert.False(t, got.Verified)

	// Upsert updates in place.
	p.Verified = true
	p.AccountRef = "acct_pg1"
	p.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.Put(ctx, p))

	got, err = store.Get(ctx, "lw_pg1")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "acct_pg1", got.AccountRef)

	_, err = store.Get(ctx, "lw_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
