package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
)

// SaveClaim creates or updates a claim
func (s *Service) SaveClaim(ctx context.Context, c *models.Claim) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return s.capture(ctx, "claim "+c.ID, func(tx *store.Store) (Change, error) {
		return upsert[models.Claim](ctx, s, tx, c)
	})
}

// SaveZone creates or updates a zone of a claim
func (s *Service) SaveZone(ctx context.Context, z *models.Zone) error {
	if z.ClaimID == "" {
		return fmt.Errorf("%w: zone requires claimId", ErrInvalid)
	}
	if z.ID == "" {
		z.ID = newID()
	}
	return s.capture(ctx, "zone "+z.ID, func(tx *store.Store) (Change, error) {
		return upsert[models.Zone](ctx, s, tx, z)
	})
}

// SavePhoto stores a captured image and queues its upload. Saving an
// existing photo id again replaces its blob and queues another upload.
func (s *Service) SavePhoto(ctx context.Context, p *models.Photo, blob []byte) error {
	if p.ClaimID == "" {
		return fmt.Errorf("%w: photo requires claimId", ErrInvalid)
	}
	if len(blob) == 0 {
		return fmt.Errorf("%w: photo requires a blob", ErrInvalid)
	}
	if p.ID == "" {
		p.ID = newID()
	}

	return s.capture(ctx, "photo "+p.ID, func(tx *store.Store) (Change, error) {
		p.Lifecycle = models.PhotoCaptured
		p.CaptureRevision = 0
		existing, err := tx.Photos().GetUnscoped(ctx, p.ID)
		switch {
		case err == nil:
			if existing.Lifecycle != "" {
				p.Lifecycle = existing.Lifecycle
			}
			p.CaptureRevision = existing.CaptureRevision
			if p.RemoteID == nil {
				p.RemoteID = existing.RemoteID
			}
		case !errors.Is(err, store.ErrNotFound):
			return Change{}, err
		}

		if err := p.Transition(models.PhotoQueued); err != nil {
			return Change{}, err
		}
		p.CaptureRevision++
		p.UploadProgress = 0
		p.SizeBytes = int64(len(blob))
		p.Blob = blob
		p.BlobSealed = false
		if s.sealer != nil {
			sealed, err := s.sealer.Seal(p.ID, blob)
			if err != nil {
				return Change{}, err
			}
			p.Blob = sealed
			p.BlobSealed = true
		}

		return upsert[models.Photo](ctx, s, tx, p)
	})
}

// SaveDamageMarker creates or updates a damage marker. The claim is taken
// from the zone when not set.
func (s *Service) SaveDamageMarker(ctx context.Context, d *models.DamageMarker) error {
	if d.ZoneID == "" {
		return fmt.Errorf("%w: damage marker requires zoneId", ErrInvalid)
	}
	if d.ID == "" {
		d.ID = newID()
	}
	return s.capture(ctx, "damage marker "+d.ID, func(tx *store.Store) (Change, error) {
		if d.ClaimID == "" {
			zone, err := tx.Zones().Get(ctx, d.ZoneID)
			if errors.Is(err, store.ErrNotFound) {
				return Change{}, fmt.Errorf("%w: unknown zone %s", ErrInvalid, d.ZoneID)
			}
			if err != nil {
				return Change{}, err
			}
			d.ClaimID = zone.ClaimID
		}
		return upsert[models.DamageMarker](ctx, s, tx, d)
	})
}

// SaveLineItem creates or updates a scope line item
func (s *Service) SaveLineItem(ctx context.Context, li *models.ScopeLineItem) error {
	if li.ClaimID == "" || li.Code == "" {
		return fmt.Errorf("%w: line item requires claimId and code", ErrInvalid)
	}
	if li.ID == "" {
		li.ID = newID()
	}
	return s.capture(ctx, "line item "+li.ID, func(tx *store.Store) (Change, error) {
		return upsert[models.ScopeLineItem](ctx, s, tx, li)
	})
}

// UpdateLineItem changes the quantity of an existing line item. Every call
// queues its own update.
func (s *Service) UpdateLineItem(ctx context.Context, id string, quantity decimal.Decimal) (*models.ScopeLineItem, error) {
	if quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalid)
	}
	var updated *models.ScopeLineItem
	err := s.capture(ctx, "line item "+id, func(tx *store.Store) (Change, error) {
		li, err := tx.LineItems().Get(ctx, id)
		if err != nil {
			return Change{}, err
		}
		li.Quantity = quantity
		updated = li
		return upsert[models.ScopeLineItem](ctx, s, tx, li)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateFlowProgress applies an optimistic flow change. A completed
// movement is queued as a step completion, any other change as a flow
// update, so every optimistic value is eventually confirmed by the server.
func (s *Service) UpdateFlowProgress(ctx context.Context, claimID string, u models.FlowUpdate) (*models.FlowState, error) {
	if claimID == "" {
		return nil, fmt.Errorf("%w: flow update requires claimId", ErrInvalid)
	}
	if u.Completed && u.MovementID == "" {
		return nil, fmt.Errorf("%w: completed step requires movementId", ErrInvalid)
	}
	if !u.Completed && u.MovementID == "" && u.ProgressPercent == nil {
		return nil, fmt.Errorf("%w: flow update changes nothing", ErrInvalid)
	}

	var state *models.FlowState
	err := s.capture(ctx, "flow "+claimID, func(tx *store.Store) (Change, error) {
		fs, err := tx.FlowState(ctx, claimID)
		if errors.Is(err, store.ErrNotFound) {
			fs = &models.FlowState{ID: newID(), ClaimID: claimID}
		} else if err != nil {
			return Change{}, err
		}

		now := time.Now().UTC()
		fs.Apply(u, now)
		fs.Touch(models.SyncStatusPending)
		if err := tx.FlowStates().Put(ctx, fs); err != nil {
			return Change{}, err
		}
		state = fs

		payload := map[string]interface{}{
			"claimId":  claimID,
			"revision": fs.Revision,
		}
		if u.ProgressPercent != nil {
			payload["progressPercent"] = fs.ProgressPercent.Data().Value
		}
		if !u.Completed {
			if u.MovementID != "" {
				payload["currentMovementId"] = u.MovementID
			}
			return s.enqueue(ctx, tx, models.ActionUpdate, models.EntityMovement, claimID, claimID, payload)
		}
		payload["movementId"] = u.MovementID
		payload["completedAt"] = now
		payload["evidence"] = u.Evidence
		payload["notes"] = u.Notes
		return s.enqueue(ctx, tx, models.ActionCreate, models.EntityMovement, u.MovementID, claimID, payload)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// DeleteClaim tombstones a claim and queues its remote delete
func (s *Service) DeleteClaim(ctx context.Context, id string) error {
	return s.capture(ctx, "delete claim "+id, func(tx *store.Store) (Change, error) {
		return remove[models.Claim](ctx, s, tx, id)
	})
}

// DeleteZone tombstones a zone and queues its remote delete
func (s *Service) DeleteZone(ctx context.Context, id string) error {
	return s.capture(ctx, "delete zone "+id, func(tx *store.Store) (Change, error) {
		return remove[models.Zone](ctx, s, tx, id)
	})
}

// DeleteDamageMarker tombstones a damage marker and queues its remote delete
func (s *Service) DeleteDamageMarker(ctx context.Context, id string) error {
	return s.capture(ctx, "delete damage marker "+id, func(tx *store.Store) (Change, error) {
		return remove[models.DamageMarker](ctx, s, tx, id)
	})
}

// DeleteLineItem tombstones a line item and queues its remote delete
func (s *Service) DeleteLineItem(ctx context.Context, id string) error {
	return s.capture(ctx, "delete line item "+id, func(tx *store.Store) (Change, error) {
		return remove[models.ScopeLineItem](ctx, s, tx, id)
	})
}

// DeletePhoto tombstones a photo, drops its blob right away and queues the
// remote delete
func (s *Service) DeletePhoto(ctx context.Context, id string) error {
	return s.capture(ctx, "delete photo "+id, func(tx *store.Store) (Change, error) {
		change, err := remove[models.Photo](ctx, s, tx, id)
		if err != nil {
			return Change{}, err
		}
		return change, tx.DropPhotoBlob(ctx, id)
	})
}

// SearchLineItemsOffline searches the cached catalog
func (s *Service) SearchLineItemsOffline(ctx context.Context, query, category string, limit int) ([]models.CachedLineItem, error) {
	return s.store.SearchLineItems(ctx, query, category, limit)
}

// PendingCountForClaim returns the number of mutations still queued for a claim
func (s *Service) PendingCountForClaim(ctx context.Context, claimID string) (int64, error) {
	return s.store.PendingCountForClaim(ctx, claimID)
}

// StorageStats reports what the device is holding
func (s *Service) StorageStats(ctx context.Context) (*store.StorageStats, error) {
	return s.store.StorageStats(ctx)
}

// ClearAll wipes the local store, queue included
func (s *Service) ClearAll(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}
