package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/claimsync/internal/config"
	"github.com/xelth-com/claimsync/internal/database"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
	"github.com/xelth-com/claimsync/internal/utils"
)

var quiet = log.New(io.Discard, "", 0)

func setupService(t *testing.T, sealer *utils.BlobSealer) (*Service, *store.Store) {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "claims.db"),
		Alter:  true,
	})
	require.NoError(t, err)

	st := store.New(db, quiet)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Dispose() })

	return NewService(st, Config{Sealer: sealer, Logger: quiet}), st
}

func TestSaveClaimIsDurableAndQueued(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, nil)

	claim := &models.Claim{ClaimNumber: "CLM-1", InsuredName: "Jane Roe"}
	require.NoError(t, svc.SaveClaim(ctx, claim))
	require.NotEmpty(t, claim.ID)

	got, err := st.Claims().Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)

	claim.InsuredName = "Jane Q. Roe"
	require.NoError(t, svc.SaveClaim(ctx, claim))

	items, err := st.QueueItemsForEntity(ctx, models.EntityClaim, claim.ID)
	require.NoError(t, err)
	require.Len(t, items, 2, "edits are appended, never coalesced")
	assert.Equal(t, models.ActionCreate, items[0].Action)
	assert.Equal(t, models.ActionUpdate, items[1].Action)
	assert.Equal(t, models.DefaultMaxAttempts, items[1].MaxAttempts)

	var payload models.Claim
	require.NoError(t, json.Unmarshal(items[1].Payload, &payload))
	assert.Equal(t, "Jane Q. Roe", payload.InsuredName)
}

func TestSaveZoneRequiresClaim(t *testing.T) {
	svc, _ := setupService(t, nil)
	err := svc.SaveZone(context.Background(), &models.Zone{Name: "Kitchen"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSavePhotoQueuesUpload(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, nil)

	blob := bytes.Repeat([]byte{0xFF}, 2*1024*1024)
	photo := &models.Photo{ClaimID: "c1", Tag: "exterior/roof"}
	require.NoError(t, svc.SavePhoto(ctx, photo, blob))

	got, err := st.Photos().Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)
	assert.Equal(t, models.PhotoQueued, got.Lifecycle)
	assert.Equal(t, 1, got.CaptureRevision)
	assert.Equal(t, int64(len(blob)), got.SizeBytes)
	assert.Len(t, got.Blob, len(blob))

	length, err := st.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	items, err := st.QueueItems(ctx)
	require.NoError(t, err)
	assert.Less(t, len(items[0].Payload), 4096, "queue payload carries metadata only")

	// re-capture replaces the blob and queues another upload
	require.NoError(t, svc.SavePhoto(ctx, photo, []byte("second")))
	got, err = st.Photos().Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CaptureRevision)
	assert.Equal(t, []byte("second"), got.Blob)
}

func TestSavePhotoSealsBlob(t *testing.T) {
	ctx := context.Background()
	sealer, err := utils.NewBlobSealer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	svc, st := setupService(t, sealer)

	photo := &models.Photo{ClaimID: "c1"}
	require.NoError(t, svc.SavePhoto(ctx, photo, []byte("raw jpeg")))

	got, err := st.Photos().Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.True(t, got.BlobSealed)
	assert.NotEqual(t, []byte("raw jpeg"), got.Blob)

	plain, err := sealer.Open(photo.ID, got.Blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw jpeg"), plain)
}

func TestSavePhotoValidation(t *testing.T) {
	svc, _ := setupService(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SavePhoto(ctx, &models.Photo{}, []byte("x")), ErrInvalid)
	assert.ErrorIs(t, svc.SavePhoto(ctx, &models.Photo{ClaimID: "c1"}, nil), ErrInvalid)
}

func TestSaveDamageMarkerDerivesClaim(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, nil)

	zone := &models.Zone{ClaimID: "c1", Name: "Bath"}
	require.NoError(t, svc.SaveZone(ctx, zone))

	marker := &models.DamageMarker{ZoneID: zone.ID, Severity: "high", DamageType: "water"}
	require.NoError(t, svc.SaveDamageMarker(ctx, marker))
	assert.Equal(t, "c1", marker.ClaimID)

	count, err := st.PendingCountForClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	err = svc.SaveDamageMarker(ctx, &models.DamageMarker{ZoneID: "missing"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpdateLineItemAppendsEachEdit(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, nil)

	li := &models.ScopeLineItem{ClaimID: "c1", Code: "DRY-1/2", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("2.15")}
	require.NoError(t, svc.SaveLineItem(ctx, li))

	_, err := svc.UpdateLineItem(ctx, li.ID, decimal.NewFromInt(5))
	require.NoError(t, err)
	updated, err := svc.UpdateLineItem(ctx, li.ID, decimal.NewFromInt(8))
	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(decimal.NewFromInt(8)))

	items, err := st.QueueItemsForEntity(ctx, models.EntityLineItem, li.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	_, err = svc.UpdateLineItem(ctx, "missing", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.UpdateLineItem(ctx, li.ID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpdateFlowProgress(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, nil)

	pct := 20
	fs, err := svc.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{MovementID: "m1", ProgressPercent: &pct})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, fs.SyncStatus)
	assert.Equal(t, 1, fs.Revision)

	fs, err = svc.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{MovementID: "m1", Completed: true, Evidence: []string{"p1"}})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, fs.SyncStatus)
	assert.True(t, fs.HasOptimisticSteps())

	items, err := st.QueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.EntityMovement, items[0].Entity)
	assert.Equal(t, models.ActionUpdate, items[0].Action)
	assert.Equal(t, "c1", items[0].EntityID)
	assert.JSONEq(t, `{"claimId":"c1","revision":1,"currentMovementId":"m1","progressPercent":20}`, string(items[0].Payload))

	assert.Equal(t, models.ActionCreate, items[1].Action)
	assert.Equal(t, "m1", items[1].EntityID)
	assert.Equal(t, "c1", items[1].ClaimID)

	_, err = svc.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{Completed: true})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{Notes: "nothing moved"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDeleteClaimQueuesTombstone(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, nil)

	claim := &models.Claim{ClaimNumber: "CLM-9"}
	require.NoError(t, svc.SaveClaim(ctx, claim))
	require.NoError(t, svc.DeleteClaim(ctx, claim.ID))

	_, err := st.Claims().Get(ctx, claim.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	items, err := st.QueueItemsForEntity(ctx, models.EntityClaim, claim.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.ActionDelete, items[1].Action)

	assert.ErrorIs(t, svc.DeleteClaim(ctx, "missing"), store.ErrNotFound)
}

func TestDeletePhotoDropsBlob(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, nil)

	photo := &models.Photo{ClaimID: "c1"}
	require.NoError(t, svc.SavePhoto(ctx, photo, []byte("jpeg")))
	require.NoError(t, svc.DeletePhoto(ctx, photo.ID))

	got, err := st.Photos().GetUnscoped(ctx, photo.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Blob)
	assert.True(t, got.DeletedAt.Valid)
}

func TestCaptureFailureIsReported(t *testing.T) {
	svc, st := setupService(t, nil)
	require.NoError(t, st.Dispose())

	err := svc.SaveClaim(context.Background(), &models.Claim{ClaimNumber: "CLM-X"})
	assert.ErrorIs(t, err, ErrNotCaptured)
}

func TestOnChangeNotifiesAfterCommit(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, nil)

	var changes []Change
	unsubscribe := svc.OnChange(func(c Change) { changes = append(changes, c) })

	require.NoError(t, svc.SaveClaim(ctx, &models.Claim{ID: "c1"}))
	unsubscribe()
	require.NoError(t, svc.SaveClaim(ctx, &models.Claim{ID: "c2"}))

	require.Len(t, changes, 1)
	assert.Equal(t, Change{Entity: models.EntityClaim, EntityID: "c1", ClaimID: "c1", Action: models.ActionCreate}, changes[0])
}
