package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/remote"
	"github.com/xelth-com/claimsync/internal/store"
	"github.com/xelth-com/claimsync/internal/utils"
)

// JSONAdapter syncs records that travel as plain JSON: claims, zones,
// damage markers and line items.
//
// Replays are expected after a crash between the remote success and the
// local queue delete, so a create that hits 409 is retried as an update,
// an update that hits 404 as a create, and a delete that hits 404 counts
// as done.
type JSONAdapter struct {
	client *remote.Client
	entity models.EntityType
	logger *log.Logger
}

// NewJSONAdapter creates the adapter for entity
func NewJSONAdapter(client *remote.Client, entity models.EntityType, logger *log.Logger) *JSONAdapter {
	return &JSONAdapter{client: client, entity: entity, logger: logging.OrDefault(logger)}
}

// Sync implements Adapter
func (a *JSONAdapter) Sync(ctx context.Context, item models.SyncQueueItem) error {
	collection, err := remote.ResourcePath(a.entity, item.ClaimID)
	if err != nil {
		return err
	}
	one, err := remote.ItemPath(a.entity, item.ClaimID, item.EntityID)
	if err != nil {
		return err
	}
	payload := []byte(item.Payload)

	switch item.Action {
	case models.ActionCreate:
		err := a.client.DoJSON(ctx, http.MethodPost, collection, payload, nil)
		if remote.IsStatus(err, http.StatusConflict) {
			a.logger.Printf("🔁 %s %s already exists remotely, updating", a.entity, item.EntityID)
			return a.client.DoJSON(ctx, http.MethodPut, one, payload, nil)
		}
		return err

	case models.ActionUpdate:
		err := a.client.DoJSON(ctx, http.MethodPut, one, payload, nil)
		if remote.IsStatus(err, http.StatusNotFound) {
			a.logger.Printf("🔁 %s %s missing remotely, creating", a.entity, item.EntityID)
			return a.client.DoJSON(ctx, http.MethodPost, collection, payload, nil)
		}
		return err

	case models.ActionDelete:
		err := a.client.DoJSON(ctx, http.MethodDelete, one, nil, nil)
		if remote.IsStatus(err, http.StatusNotFound) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unsupported action %q for %s", item.Action, a.entity)
}

// PhotoAdapter uploads photo blobs. Create and update both upload the
// current blob; the payload only carries metadata.
type PhotoAdapter struct {
	client *remote.Client
	store  *store.Store
	sealer *utils.BlobSealer
	logger *log.Logger
}

// NewPhotoAdapter creates the photo adapter. sealer may be nil when blobs
// are stored in the clear.
func NewPhotoAdapter(client *remote.Client, st *store.Store, sealer *utils.BlobSealer, logger *log.Logger) *PhotoAdapter {
	return &PhotoAdapter{client: client, store: st, sealer: sealer, logger: logging.OrDefault(logger)}
}

// Sync implements Adapter
func (a *PhotoAdapter) Sync(ctx context.Context, item models.SyncQueueItem) error {
	if item.Action == models.ActionDelete {
		return a.delete(ctx, item)
	}

	photo, err := a.store.BeginPhotoUpload(ctx, item.EntityID)
	if errors.Is(err, store.ErrNotFound) {
		// deleted since; the queued delete takes care of the remote side
		return nil
	}
	if err != nil {
		return err
	}

	if photo.Lifecycle == models.PhotoSynced && !photo.HasBlob() {
		// uploaded by an earlier queue item
		return a.attachEvidence(ctx, photo, deref(photo.RemoteID))
	}

	blob := photo.Blob
	if photo.BlobSealed {
		if a.sealer == nil {
			return a.fail(ctx, photo, errors.New("photo blob is sealed but no key is configured"))
		}
		if blob, err = a.sealer.Open(photo.ID, photo.Blob); err != nil {
			return a.fail(ctx, photo, err)
		}
	}

	res, err := a.client.UploadPhoto(ctx, remote.Upload{
		ClaimID:     photo.ClaimID,
		PhotoID:     photo.ID,
		Filename:    photo.Filename,
		ContentType: photo.ContentType,
		Metadata:    item.Payload,
		Blob:        blob,
	}, func(pct int) {
		if err := a.store.UpdatePhotoProgress(ctx, photo.ID, pct); err != nil {
			a.logger.Printf("⚠️ %v", err)
		}
	})
	if err != nil {
		return a.fail(ctx, photo, err)
	}

	completed, err := a.store.CompletePhotoUpload(ctx, photo.ID, photo.CaptureRevision, res.ID)
	if err != nil {
		return err
	}
	if !completed {
		a.logger.Printf("📷 Photo %s was re-captured during upload, keeping the new blob", photo.ID)
		return nil
	}
	a.logger.Printf("📷 Photo %s uploaded as %s (%d bytes)", photo.ID, res.ID, len(blob))
	return a.attachEvidence(ctx, photo, res.ID)
}

func (a *PhotoAdapter) fail(ctx context.Context, photo *models.Photo, cause error) error {
	if err := a.store.FailPhotoUpload(ctx, photo.ID, photo.CaptureRevision); err != nil {
		a.logger.Printf("❌ %v", err)
	}
	return cause
}

func (a *PhotoAdapter) attachEvidence(ctx context.Context, photo *models.Photo, remoteID string) error {
	if photo.MovementID == nil || *photo.MovementID == "" || remoteID == "" {
		return nil
	}
	if err := a.client.AttachMovementEvidence(ctx, photo.ClaimID, *photo.MovementID, remoteID); err != nil {
		if setErr := a.store.SetSyncStatus(ctx, models.EntityPhoto, photo.ID, models.SyncStatusPending); setErr != nil {
			a.logger.Printf("❌ %v", setErr)
		}
		return fmt.Errorf("failed to attach photo %s to movement %s: %w", photo.ID, *photo.MovementID, err)
	}
	return nil
}

func (a *PhotoAdapter) delete(ctx context.Context, item models.SyncQueueItem) error {
	id := item.EntityID
	if photo, err := a.store.Photos().GetUnscoped(ctx, item.EntityID); err == nil && photo.RemoteID != nil {
		id = *photo.RemoteID
	}
	path, err := remote.ItemPath(models.EntityPhoto, item.ClaimID, id)
	if err != nil {
		return err
	}
	err = a.client.DoJSON(ctx, http.MethodDelete, path, nil, nil)
	if remote.IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// MovementAdapter posts inspection step completions and flow updates, then
// confirms the optimistic flow state with the server's answer
type MovementAdapter struct {
	client *remote.Client
	store  *store.Store
	logger *log.Logger
}

// NewMovementAdapter creates the movement adapter
func NewMovementAdapter(client *remote.Client, st *store.Store, logger *log.Logger) *MovementAdapter {
	return &MovementAdapter{client: client, store: st, logger: logging.OrDefault(logger)}
}

// Sync implements Adapter
func (a *MovementAdapter) Sync(ctx context.Context, item models.SyncQueueItem) error {
	var meta struct {
		Revision int `json:"revision"`
	}
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &meta); err != nil {
			return fmt.Errorf("invalid flow payload: %w", err)
		}
	}

	var (
		snap       *models.FlowSnapshot
		movementID string
		err        error
	)
	if item.Action == models.ActionCreate {
		movementID = item.EntityID
		snap, err = a.client.CompleteMovement(ctx, item.ClaimID, movementID, item.Payload)
	} else {
		snap, err = a.client.UpdateFlow(ctx, item.ClaimID, item.Payload)
	}
	if err != nil {
		return err
	}

	conflicts, err := a.store.ConfirmFlowStep(ctx, item.ClaimID, movementID, snap, meta.Revision)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, c := range conflicts {
		a.logger.Printf("⚠️ Flow of claim %s: %s is %s locally, %s on server", item.ClaimID, c.Field, c.Local, c.Remote)
	}
	return nil
}

// RegisterDefaultAdapters wires the adapters for every queued entity type
func RegisterDefaultAdapters(s *Service, client *remote.Client, st *store.Store, sealer *utils.BlobSealer, logger *log.Logger) {
	for _, entity := range []models.EntityType{
		models.EntityClaim,
		models.EntityZone,
		models.EntityDamageMarker,
		models.EntityLineItem,
	} {
		s.RegisterAdapter(entity, NewJSONAdapter(client, entity, logger))
	}
	s.RegisterAdapter(models.EntityPhoto, NewPhotoAdapter(client, st, sealer, logger))
	s.RegisterAdapter(models.EntityMovement, NewMovementAdapter(client, st, logger))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
