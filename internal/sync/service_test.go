package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/claimsync/internal/capture"
	"github.com/xelth-com/claimsync/internal/config"
	"github.com/xelth-com/claimsync/internal/connectivity"
	"github.com/xelth-com/claimsync/internal/database"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/remote"
	"github.com/xelth-com/claimsync/internal/remote/fakeapi"
	"github.com/xelth-com/claimsync/internal/store"
	"github.com/xelth-com/claimsync/internal/utils"
)

var quiet = log.New(io.Discard, "", 0)

type harness struct {
	store   *store.Store
	capture *capture.Service
	backend *fakeapi.Server
	client  *remote.Client
	monitor *connectivity.Monitor
	sync    *Service
}

func newHarness(t *testing.T, cfg *config.SyncConfig, sealer *utils.BlobSealer) *harness {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "claims.db"),
		Alter:  true,
	})
	require.NoError(t, err)
	st := store.New(db, quiet)
	require.NoError(t, st.Init(context.Background()))

	backend := fakeapi.New("", quiet)
	srv := httptest.NewServer(backend)

	if cfg == nil {
		cfg = &config.SyncConfig{MaxAttempts: models.DefaultMaxAttempts}
	}
	client := remote.NewClient(srv.URL, srv.Client(), nil, quiet)
	monitor := connectivity.NewMonitor(connectivity.Config{Logger: quiet})
	svc := NewService(Options{Store: st, Connectivity: monitor, Config: cfg, Logger: quiet})
	RegisterDefaultAdapters(svc, client, st, sealer, quiet)

	t.Cleanup(func() {
		svc.Dispose()
		srv.Close()
		_ = st.Dispose()
	})

	return &harness{
		store:   st,
		capture: capture.NewService(st, capture.Config{Sealer: sealer, Logger: quiet}),
		backend: backend,
		client:  client,
		monitor: monitor,
		sync:    svc,
	}
}

func (h *harness) drain(t *testing.T) Progress {
	t.Helper()
	progress, ran := h.sync.ProcessQueue(context.Background())
	require.True(t, ran)
	return progress
}

func (h *harness) queueLength(t *testing.T) int64 {
	t.Helper()
	n, err := h.store.QueueLength(context.Background())
	require.NoError(t, err)
	return n
}

func TestPhotoUploadAfterReconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	require.NoError(t, h.sync.Init(ctx))

	blob := bytes.Repeat([]byte{0x42}, 2*1024*1024)
	photo := &models.Photo{ClaimID: "c1", Tag: "interior/kitchen", ContentType: "image/jpeg"}
	require.NoError(t, h.capture.SavePhoto(ctx, photo, blob))

	assert.Equal(t, int64(1), h.queueLength(t))
	got, err := h.store.Photos().Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)

	h.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		snap := h.sync.Snapshot()
		return snap.LastSync != nil && snap.Status == StatusIdle && snap.PendingCount == 0
	}, 5*time.Second, 20*time.Millisecond)

	got, err = h.store.Photos().Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)
	assert.Equal(t, models.PhotoSynced, got.Lifecycle)
	assert.Equal(t, 100, got.UploadProgress)
	assert.Empty(t, got.Blob)
	require.NotNil(t, got.RemoteID)

	stored, ok := h.backend.PhotoByLocalID(photo.ID)
	require.True(t, ok)
	assert.Equal(t, len(blob), len(stored.Data))
	assert.Equal(t, *got.RemoteID, stored.RemoteID)
}

func TestLineItemEditsConvergeToLastValue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	li := &models.ScopeLineItem{ClaimID: "c1", Code: "PNT-W", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("1.25")}
	require.NoError(t, h.capture.SaveLineItem(ctx, li))
	h.monitor.SetOnline(true)
	h.drain(t)
	h.monitor.SetOnline(false)

	_, err := h.capture.UpdateLineItem(ctx, li.ID, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = h.capture.UpdateLineItem(ctx, li.ID, decimal.NewFromInt(8))
	require.NoError(t, err)

	items, err := h.store.QueueItemsForEntity(ctx, models.EntityLineItem, li.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	h.monitor.SetOnline(true)
	progress := h.drain(t)
	assert.Equal(t, Progress{Total: 2, Completed: 2}, progress)

	rec, ok := h.backend.Record("line-items", li.ID)
	require.True(t, ok)
	assert.Equal(t, "8", rec["quantity"])
	assert.Equal(t, int64(0), h.queueLength(t))

	got, err := h.store.LineItems().Get(ctx, li.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)
}

func TestAlwaysFailingItemHitsCeiling(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)
	h.backend.Fail("", "/api/claims", http.StatusInternalServerError, -1)

	claim := &models.Claim{ID: "c1", ClaimNumber: "CLM-1"}
	require.NoError(t, h.capture.SaveClaim(ctx, claim))

	var last Progress
	for i := 1; i <= models.DefaultMaxAttempts; i++ {
		last = h.drain(t)
		require.Len(t, last.Errors, 1)
		assert.Equal(t, "c1", last.Errors[0].EntityID)
		assert.Equal(t, i, last.Errors[0].Attempts)
		assert.Equal(t, UserErrorMessage, last.Errors[0].Message)
	}
	assert.True(t, last.Errors[0].Permanent)

	items, err := h.store.QueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.DefaultMaxAttempts, items[0].Attempts)
	require.NotNil(t, items[0].Error)
	assert.Contains(t, *items[0].Error, "500")

	sent := len(h.backend.Requests())
	last = h.drain(t)
	assert.Equal(t, sent, len(h.backend.Requests()), "exhausted items are not dispatched again")
	assert.Equal(t, 1, last.Completed)
	require.Len(t, last.Errors, 1)
	assert.True(t, last.Errors[0].Permanent)
	assert.Equal(t, StatusError, h.sync.Snapshot().Status)
}

func TestFailureKeepsItemAndBumpsAttemptsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)
	h.sync.RegisterAdapter(models.EntityZone, AdapterFunc(func(context.Context, models.SyncQueueItem) error {
		return errors.New("timeout")
	}))

	zone := &models.Zone{ClaimID: "c1", Name: "Hall"}
	require.NoError(t, h.capture.SaveZone(ctx, zone))
	h.drain(t)

	items, err := h.store.QueueItemsForEntity(ctx, models.EntityZone, zone.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	assert.NotNil(t, items[0].LastAttempt)

	got, err := h.store.Zones().Get(ctx, zone.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)
}

func TestProcessQueueIsReentrancyGuarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	h.sync.RegisterAdapter(models.EntityClaim, AdapterFunc(func(context.Context, models.SyncQueueItem) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(entered)
		<-release
		return nil
	}))
	require.NoError(t, h.capture.SaveClaim(ctx, &models.Claim{ID: "c1"}))

	done := make(chan Progress)
	go func() {
		p, _ := h.sync.ProcessQueue(ctx)
		done <- p
	}()
	<-entered

	second, ran := h.sync.ProcessQueue(ctx)
	assert.False(t, ran)
	assert.Equal(t, Progress{}, second)
	assert.Equal(t, StatusSyncing, h.sync.Snapshot().Status)

	close(release)
	first := <-done
	assert.Equal(t, Progress{Total: 1, Completed: 1}, first)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestOfflineDrainIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	require.NoError(t, h.capture.SaveClaim(ctx, &models.Claim{ID: "c1"}))

	_, ran := h.sync.ProcessQueue(ctx)
	assert.False(t, ran)
	assert.Empty(t, h.backend.Requests())

	snap := h.sync.Snapshot()
	assert.Equal(t, StatusOffline, snap.Status)
	assert.False(t, snap.Online)
	assert.Equal(t, int64(1), snap.PendingCount)
}

func TestReplayedCreateFallsBackToUpdate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	claim := &models.Claim{ID: "c1", ClaimNumber: "CLM-1", InsuredName: "old"}
	require.NoError(t, h.client.DoJSON(ctx, http.MethodPost, "/api/claims", claim, nil))

	claim.InsuredName = "new"
	require.NoError(t, h.capture.SaveClaim(ctx, claim))
	progress := h.drain(t)
	assert.Empty(t, progress.Errors)

	rec, ok := h.backend.Record("claims", "c1")
	require.True(t, ok)
	assert.Equal(t, "new", rec["insuredName"])
}

func TestDeletePurgesTombstone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	marker := &models.DamageMarker{ZoneID: "z1", ClaimID: "c1", Severity: "low"}
	require.NoError(t, h.capture.SaveDamageMarker(ctx, marker))
	h.drain(t)
	assert.Equal(t, 1, h.backend.Count("damage-markers"))

	require.NoError(t, h.capture.DeleteDamageMarker(ctx, marker.ID))
	h.drain(t)

	assert.Equal(t, 0, h.backend.Count("damage-markers"))
	_, err := h.store.DamageMarkers().GetUnscoped(ctx, marker.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteOfRemotelyMissingRecordIsSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	zone := &models.Zone{ClaimID: "c1"}
	require.NoError(t, h.capture.SaveZone(ctx, zone))
	h.drain(t)
	require.NoError(t, h.client.DoJSON(ctx, http.MethodDelete, "/api/claims/c1/zones/"+zone.ID, nil, nil))

	require.NoError(t, h.capture.DeleteZone(ctx, zone.ID))
	progress := h.drain(t)
	assert.Empty(t, progress.Errors)

	_, err := h.store.Zones().GetUnscoped(ctx, zone.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLaterEditsWaitForFailedEarlierOne(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	zone := &models.Zone{ClaimID: "c1", Name: "Den"}
	require.NoError(t, h.capture.SaveZone(ctx, zone))
	require.NoError(t, h.capture.DeleteZone(ctx, zone.ID))

	h.backend.Fail(http.MethodPost, "/api/claims/c1/zones", http.StatusBadGateway, 1)
	h.monitor.SetOnline(true)

	progress := h.drain(t)
	require.Len(t, progress.Errors, 1)
	assert.Equal(t, 0, progress.Completed)
	for _, r := range h.backend.Requests() {
		assert.NotEqual(t, http.MethodDelete, r.Method)
	}

	progress = h.drain(t)
	assert.Empty(t, progress.Errors)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 0, h.backend.Count("zones"))
	assert.Equal(t, int64(0), h.queueLength(t))
}

func TestMovementConfirmsFlowStep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	pct := 50
	_, err := h.capture.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{MovementID: "m1", ProgressPercent: &pct, Completed: true})
	require.NoError(t, err)

	movement := "m1"
	photo := &models.Photo{ClaimID: "c1", MovementID: &movement}
	require.NoError(t, h.capture.SavePhoto(ctx, photo, []byte("evidence")))

	progress := h.drain(t)
	assert.Empty(t, progress.Errors)
	assert.Equal(t, []string{"m1"}, h.backend.CompletedMovements("c1"))

	fs, err := h.store.FlowState(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, fs.HasOptimisticSteps())
	assert.Equal(t, models.SyncStatusSynced, fs.SyncStatus)
	assert.Equal(t, models.Confirmed, fs.ProgressPercent.Data().Provenance)

	stored, ok := h.backend.PhotoByLocalID(photo.ID)
	require.True(t, ok)
	assert.Equal(t, []string{stored.RemoteID}, h.backend.Evidence("c1", "m1"))
}

func TestFlowMoveAfterCompletionConverges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	pct := 50
	_, err := h.capture.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{MovementID: "m1", ProgressPercent: &pct, Completed: true})
	require.NoError(t, err)
	_, err = h.capture.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{MovementID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.queueLength(t))

	progress := h.drain(t)
	assert.Empty(t, progress.Errors)
	assert.Equal(t, int64(0), h.queueLength(t))

	fs, err := h.store.FlowState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, fs.SyncStatus)
	assert.False(t, fs.HasOptimistic())
	assert.Equal(t, "m2", fs.CurrentMovement.Data().Value)
	assert.Equal(t, 50, fs.ProgressPercent.Data().Value)

	remote := h.backend.Flow("c1")
	assert.Equal(t, "m2", remote.CurrentMovementID)
	assert.Equal(t, []string{"m1"}, remote.CompletedMovements)
}

func TestFlowConflictIsKept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)
	// another device owns the flow and the server keeps its values
	h.backend.PinFlow("c1", models.FlowSnapshot{CurrentMovementID: "m0", ProgressPercent: 90})

	pct := 10
	_, err := h.capture.UpdateFlowProgress(ctx, "c1", models.FlowUpdate{MovementID: "m1", ProgressPercent: &pct, Completed: true})
	require.NoError(t, err)

	progress := h.drain(t)
	assert.Empty(t, progress.Errors)

	fs, err := h.store.FlowState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusConflict, fs.SyncStatus)
	assert.Equal(t, 10, fs.ProgressPercent.Data().Value)
	assert.Equal(t, models.Optimistic, fs.ProgressPercent.Data().Provenance)
	assert.Equal(t, "m1", fs.CurrentMovement.Data().Value)
	assert.Equal(t, models.Optimistic, fs.CurrentMovement.Data().Provenance)
}

func TestDisposeMidDrainRecordsOneAttempt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	entered := make(chan struct{})
	var once sync.Once
	var calls int
	var mu sync.Mutex
	h.sync.RegisterAdapter(models.EntityZone, AdapterFunc(func(ctx context.Context, _ models.SyncQueueItem) error {
		mu.Lock()
		calls++
		mu.Unlock()
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return ctx.Err()
	}))
	for _, name := range []string{"Hall", "Kitchen", "Bath"} {
		require.NoError(t, h.capture.SaveZone(ctx, &models.Zone{ClaimID: "c1", Name: name}))
	}

	require.NoError(t, h.sync.Init(ctx))
	require.True(t, h.sync.TriggerDrain())
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("drain never reached the adapter")
	}
	h.sync.Dispose()

	mu.Lock()
	assert.Equal(t, 1, calls, "no item is dispatched after the drain was cancelled")
	mu.Unlock()

	items, err := h.store.QueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].Attempts)
	require.NotNil(t, items[0].Error)
	assert.Contains(t, *items[0].Error, "context canceled")
	assert.Equal(t, 0, items[1].Attempts)
	assert.Equal(t, 0, items[2].Attempts)
}

func TestGoingOfflineDoesNotAbortInFlightItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.sync.RegisterAdapter(models.EntityZone, AdapterFunc(func(ctx context.Context, _ models.SyncQueueItem) error {
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	zone := &models.Zone{ClaimID: "c1", Name: "Hall"}
	require.NoError(t, h.capture.SaveZone(ctx, zone))

	done := make(chan Progress)
	go func() {
		p, _ := h.sync.ProcessQueue(ctx)
		done <- p
	}()
	<-entered

	h.monitor.SetOnline(false)
	assert.Equal(t, StatusSyncing, h.sync.Snapshot().Status)
	close(release)

	assert.Equal(t, Progress{Total: 1, Completed: 1}, <-done)
	assert.Equal(t, int64(0), h.queueLength(t))
	got, err := h.store.Zones().Get(ctx, zone.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)
	assert.Equal(t, StatusOffline, h.sync.Snapshot().Status)
}

func TestStaleDeadLetterCannotOverwriteNewerEdit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)
	h.backend.Fail("", "/api/claims", http.StatusInternalServerError, -1)

	claim := &models.Claim{ID: "c1", ClaimNumber: "OLD"}
	require.NoError(t, h.capture.SaveClaim(ctx, claim))
	for i := 0; i < models.DefaultMaxAttempts; i++ {
		h.drain(t)
	}
	h.backend.ClearFailures()

	claim.ClaimNumber = "NEW"
	require.NoError(t, h.capture.SaveClaim(ctx, claim))
	h.drain(t)
	rec, ok := h.backend.Record("claims", "c1")
	require.True(t, ok)
	assert.Equal(t, "NEW", rec["claimNumber"])

	moved, err := h.store.MoveExhaustedToDeadLetter(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, moved)
	letters, err := h.store.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)

	_, err = h.store.RequeueDeadLetter(ctx, letters[0].ID)
	require.ErrorIs(t, err, store.ErrSuperseded)
	h.drain(t)

	rec, ok = h.backend.Record("claims", "c1")
	require.True(t, ok)
	assert.Equal(t, "NEW", rec["claimNumber"])
	local, err := h.store.Claims().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "NEW", local.ClaimNumber)
	assert.Equal(t, models.SyncStatusSynced, local.SyncStatus)
}

func TestFailedUploadRetainsBlob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)
	h.backend.Fail(http.MethodPost, "/api/claims/c1/photos", http.StatusServiceUnavailable, 1)

	photo := &models.Photo{ClaimID: "c1"}
	require.NoError(t, h.capture.SavePhoto(ctx, photo, []byte("jpeg")))
	h.drain(t)

	got, err := h.store.Photos().Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoFailed, got.Lifecycle)
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)
	assert.Equal(t, []byte("jpeg"), got.Blob)

	h.drain(t)
	got, err = h.store.Photos().Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoSynced, got.Lifecycle)
	assert.Empty(t, got.Blob)
}

func TestSealedPhotoIsUploadedInTheClear(t *testing.T) {
	ctx := context.Background()
	sealer, err := utils.NewBlobSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	h := newHarness(t, nil, sealer)
	h.monitor.SetOnline(true)

	photo := &models.Photo{ClaimID: "c1"}
	require.NoError(t, h.capture.SavePhoto(ctx, photo, []byte("plain jpeg")))
	h.drain(t)

	stored, ok := h.backend.PhotoByLocalID(photo.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("plain jpeg"), stored.Data)
}

func TestRetryDrainAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &config.SyncConfig{MaxAttempts: 5, RetryBackoffInitialMs: 10, RetryBackoffMaxMs: 50}, nil)
	h.backend.Fail("", "/api/claims", http.StatusBadGateway, 1)
	require.NoError(t, h.capture.SaveClaim(ctx, &models.Claim{ID: "c1"}))
	require.NoError(t, h.sync.Init(ctx))

	h.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		return h.queueLength(t) == 0
	}, 5*time.Second, 20*time.Millisecond)
	_, ok := h.backend.Record("claims", "c1")
	assert.True(t, ok)
}

func TestSubscribeSeesEveryItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)
	require.NoError(t, h.capture.SaveClaim(ctx, &models.Claim{ID: "c1"}))
	require.NoError(t, h.capture.SaveClaim(ctx, &models.Claim{ID: "c2"}))

	var snaps []Snapshot
	unsubscribe := h.sync.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })
	defer unsubscribe()

	h.drain(t)

	require.GreaterOrEqual(t, len(snaps), 4)
	assert.Equal(t, StatusSyncing, snaps[0].Status)
	last := snaps[len(snaps)-1]
	assert.Equal(t, StatusIdle, last.Status)
	assert.Equal(t, Progress{Total: 2, Completed: 2}, last.Progress)
	assert.Equal(t, int64(0), last.PendingCount)
}

func TestMissingAdapterIsAFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.monitor.SetOnline(true)
	require.NoError(t, h.store.Enqueue(ctx, &models.SyncQueueItem{Action: models.ActionCreate, Entity: "audio", EntityID: "a1"}))

	progress := h.drain(t)
	require.Len(t, progress.Errors, 1)

	items, err := h.store.QueueItems(ctx)
	require.NoError(t, err)
	require.NotNil(t, items[0].Error)
	assert.Contains(t, *items[0].Error, ErrNoAdapter.Error())
}
