package remote

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/remote/fakeapi"
	"github.com/xelth-com/claimsync/internal/utils"
)

var quiet = log.New(io.Discard, "", 0)

func setupBackend(t *testing.T, secret string) (*fakeapi.Server, *Client) {
	t.Helper()
	backend := fakeapi.New(secret, quiet)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	var tokens TokenSource
	if secret != "" {
		tokens = utils.NewDeviceTokenSource("tablet-1", secret)
	}
	return backend, NewClient(srv.URL, srv.Client(), tokens, quiet)
}

func TestDoJSONCreateAndConflict(t *testing.T) {
	ctx := context.Background()
	backend, client := setupBackend(t, "")

	claim := map[string]string{"id": "c1", "claimNumber": "CLM-1"}
	require.NoError(t, client.DoJSON(ctx, http.MethodPost, "/api/claims", claim, nil))

	err := client.DoJSON(ctx, http.MethodPost, "/api/claims", claim, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "already exists")

	rec, ok := backend.Record("claims", "c1")
	require.True(t, ok)
	assert.Equal(t, "CLM-1", rec["claimNumber"])
}

func TestDoJSONDecodesResponse(t *testing.T) {
	ctx := context.Background()
	_, client := setupBackend(t, "")

	require.NoError(t, client.DoJSON(ctx, http.MethodPost, "/api/claims", map[string]string{"id": "c1", "status": "open"}, nil))

	var out map[string]string
	require.NoError(t, client.DoJSON(ctx, http.MethodGet, "/api/claims/c1", nil, &out))
	assert.Equal(t, "open", out["status"])

	err := client.DoJSON(ctx, http.MethodPut, "/api/claims/missing", map[string]string{"id": "missing"}, nil)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	ctx := context.Background()
	var status atomic.Int32
	status.Store(http.StatusNotModified)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, srv.Client(), nil, quiet)

	err := client.DoJSON(ctx, http.MethodPut, "/api/claims/c1", map[string]string{"id": "c1"}, nil)
	assert.True(t, IsStatus(err, http.StatusNotModified))

	status.Store(http.StatusNoContent)
	assert.NoError(t, client.DoJSON(ctx, http.MethodDelete, "/api/claims/c1", nil, nil))
}

func TestTokenIsSent(t *testing.T) {
	ctx := context.Background()
	_, client := setupBackend(t, "device-secret")
	require.NoError(t, client.DoJSON(ctx, http.MethodPost, "/api/claims", map[string]string{"id": "c1"}, nil))

	anonymous := NewClient(client.BaseURL(), nil, nil, quiet)
	err := anonymous.DoJSON(ctx, http.MethodPost, "/api/claims", map[string]string{"id": "c2"}, nil)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestUploadPhotoReportsProgress(t *testing.T) {
	ctx := context.Background()
	backend, client := setupBackend(t, "")

	blob := bytes.Repeat([]byte{0xAB}, 2*1024*1024)
	var seen []int
	res, err := client.UploadPhoto(ctx, Upload{
		ClaimID:  "c1",
		PhotoID:  "p1",
		Metadata: []byte(`{"tag":"roof"}`),
		Blob:     blob,
	}, func(pct int) { seen = append(seen, pct) })
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)

	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}

	stored, ok := backend.PhotoByLocalID("p1")
	require.True(t, ok)
	assert.Equal(t, res.ID, stored.RemoteID)
	assert.Equal(t, len(blob), len(stored.Data))
	assert.Equal(t, "image/jpeg", stored.ContentType)
	assert.JSONEq(t, `{"tag":"roof"}`, stored.Metadata)
}

func TestUploadPhotoFailureIsAPIError(t *testing.T) {
	backend, client := setupBackend(t, "")
	backend.Fail(http.MethodPost, "/api/claims/c1/photos", http.StatusBadGateway, 1)

	_, err := client.UploadPhoto(context.Background(), Upload{ClaimID: "c1", PhotoID: "p1", Blob: []byte("x")}, nil)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
}

func TestMovementEndpoints(t *testing.T) {
	ctx := context.Background()
	backend, client := setupBackend(t, "")

	snap, err := client.CompleteMovement(ctx, "c1", "m1", []byte(`{"progressPercent":40}`))
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, models.FlowSnapshot{CurrentMovementID: "m1", ProgressPercent: 40, CompletedMovements: []string{"m1"}}, *snap)

	res, err := client.UploadPhoto(ctx, Upload{ClaimID: "c1", PhotoID: "p1", Blob: []byte("x")}, nil)
	require.NoError(t, err)
	require.NoError(t, client.AttachMovementEvidence(ctx, "c1", "m1", res.ID))
	assert.Equal(t, []string{res.ID}, backend.Evidence("c1", "m1"))
}

func TestHealthAndRouteSwitch(t *testing.T) {
	ctx := context.Background()
	backend, client := setupBackend(t, "")

	require.NoError(t, client.Health(ctx))
	backend.SetHealthy(false)
	assert.True(t, IsStatus(client.Health(ctx), http.StatusServiceUnavailable))

	primary := client.BaseURL()
	client.SetBaseURL("http://127.0.0.1:1/")
	assert.Equal(t, "http://127.0.0.1:1", client.BaseURL())
	assert.Error(t, client.Health(ctx))
	assert.True(t, IsStatus(client.HealthAt(ctx, primary), http.StatusServiceUnavailable))
}

func TestResourcePath(t *testing.T) {
	p, err := ItemPath(models.EntityZone, "c 1", "z1")
	require.NoError(t, err)
	assert.Equal(t, "/api/claims/c%201/zones/z1", p)

	_, err = ResourcePath(models.EntityMovement, "c1")
	assert.Error(t, err)
}
