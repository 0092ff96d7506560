package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/claimsync/internal/capture"
	"github.com/xelth-com/claimsync/internal/config"
	"github.com/xelth-com/claimsync/internal/database"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
)

func TestParseCatalog(t *testing.T) {
	items, err := parseCatalog(strings.NewReader(`[
		{"code": " DRY-1 ", "description": "Drywall", "price": "3.10"},
		{"code": "PNT-2", "description": "Paint", "price": "2"},
		{"code": "DRY-1", "description": "Drywall 5/8", "price": "3.40"}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "DRY-1", items[0].Code)
	assert.Equal(t, "Drywall 5/8", items[0].Description)
	assert.False(t, items[0].UpdatedAt.IsZero())
}

func TestParseCatalogRejectsBadRows(t *testing.T) {
	_, err := parseCatalog(strings.NewReader(`[{"description": "no code"}]`))
	assert.Error(t, err)

	_, err = parseCatalog(strings.NewReader(`[{"code": "X", "price": "-1"}]`))
	assert.Error(t, err)

	_, err = parseCatalog(strings.NewReader(`{}`))
	assert.Error(t, err)
}

func TestSeedDemoQueuesEverything(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "claims.db"), Alter: true})
	require.NoError(t, err)
	st := store.New(db, log.New(io.Discard, "", 0))
	require.NoError(t, st.Init(ctx))
	defer st.Dispose()

	claimID, err := seedDemo(ctx, capture.NewService(st, capture.Config{Logger: log.New(io.Discard, "", 0)}))
	require.NoError(t, err)

	stats, err := st.StorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Claims)
	assert.Equal(t, int64(2), stats.Zones)
	assert.Equal(t, int64(2), stats.Photos)
	assert.Equal(t, int64(2), stats.DamageMarkers)
	assert.Equal(t, int64(2), stats.LineItems)

	// claim, 2x(zone, photo, marker, line item), movement
	pending, err := st.PendingCountForClaim(ctx, claimID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pending)

	fs, err := st.FlowState(ctx, claimID)
	require.NoError(t, err)
	require.Len(t, fs.Steps, 1)
	assert.Equal(t, models.Optimistic, fs.Steps[0].Provenance)
}
