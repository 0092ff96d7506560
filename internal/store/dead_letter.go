package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/claimsync/internal/models"
)

// ErrSuperseded is returned when requeueing a dead letter whose record
// changed after it was queued. Replaying it would overwrite the newer state.
var ErrSuperseded = errors.New("dead letter superseded by a later change")

// MoveExhaustedToDeadLetter moves every queue item that reached its attempt
// ceiling into the dead-letter table and trims that table to limit rows
// (oldest first). A record behind a moved item is marked conflict unless a
// later change superseded the item. It is an operator action; drains never
// call it.
func (s *Store) MoveExhaustedToDeadLetter(ctx context.Context, limit int) (int, error) {
	moved := 0
	err := s.WithTx(ctx, func(tx *Store) error {
		var exhausted []models.SyncQueueItem
		if err := tx.db.Where("attempts >= max_attempts").Order("id ASC").Find(&exhausted).Error; err != nil {
			return fmt.Errorf("failed to load exhausted items: %w", err)
		}

		now := time.Now().UTC()
		for _, item := range exhausted {
			dl := models.DeadLetter{
				ID:          item.ID,
				Action:      item.Action,
				Entity:      item.Entity,
				EntityID:    item.EntityID,
				ClaimID:     item.ClaimID,
				Payload:     item.Payload,
				Attempts:    item.Attempts,
				MaxAttempts: item.MaxAttempts,
				LastError:   item.Error,
				QueuedAt:    item.CreatedAt,
				DeadAt:      now,
			}
			if err := tx.db.Create(&dl).Error; err != nil {
				return fmt.Errorf("failed to archive queue item %s: %w", item.ID, err)
			}
			if err := tx.db.Delete(&models.SyncQueueItem{}, "id = ?", item.ID).Error; err != nil {
				return fmt.Errorf("failed to remove queue item %s: %w", item.ID, err)
			}
			superseded, err := tx.superseded(ctx, item.Entity, item.EntityID, item.ClaimID, item.Payload, item.CreatedAt)
			if err != nil {
				return err
			}
			if !superseded {
				if err := tx.SetSyncStatus(ctx, item.Entity, item.EntityID, models.SyncStatusConflict); err != nil {
					return err
				}
			}
			moved++
		}

		return tx.pruneDeadLetters(limit)
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.logger.Printf("📦 Moved %d exhausted queue items to dead letters", moved)
	}
	return moved, nil
}

// DeadLetters lists archived items, newest first
func (s *Store) DeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	var out []models.DeadLetter
	if err := s.db.WithContext(ctx).Order("dead_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load dead letters: %w", err)
	}
	return out, nil
}

// RequeueDeadLetter puts an archived item back at the end of the queue with
// a fresh attempt budget. It fails with ErrSuperseded when the record was
// changed after the item was queued or has later changes still queued.
func (s *Store) RequeueDeadLetter(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	var item *models.SyncQueueItem
	err := s.WithTx(ctx, func(tx *Store) error {
		var dl models.DeadLetter
		if err := tx.db.First(&dl, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		superseded, err := tx.superseded(ctx, dl.Entity, dl.EntityID, dl.ClaimID, dl.Payload, dl.QueuedAt)
		if err != nil {
			return err
		}
		if superseded {
			return fmt.Errorf("%w: %s %s", ErrSuperseded, dl.Entity, dl.EntityID)
		}

		item = &models.SyncQueueItem{
			Action:      dl.Action,
			Entity:      dl.Entity,
			EntityID:    dl.EntityID,
			ClaimID:     dl.ClaimID,
			Payload:     dl.Payload,
			MaxAttempts: dl.MaxAttempts,
		}
		if err := tx.Enqueue(ctx, item); err != nil {
			return err
		}
		if err := tx.db.Delete(&models.DeadLetter{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to remove dead letter %s: %w", id, err)
		}
		return tx.SetSyncStatus(ctx, dl.Entity, dl.EntityID, models.SyncStatusPending)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("♻️ Requeued dead letter %s as %s", id, item.ID)
	return item, nil
}

// superseded reports whether a queued change is older than the local state:
// another change of the same record is queued, or the record was modified
// after queuedAt. Flow changes of a claim compare by flow revision.
func (s *Store) superseded(ctx context.Context, entity models.EntityType, entityID, claimID string, payload []byte, queuedAt time.Time) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.SyncQueueItem{}).Where("entity = ?", entity)
	if entity == models.EntityMovement {
		q = q.Where("claim_id = ?", claimID)
	} else {
		q = q.Where("entity_id = ?", entityID)
	}
	var queued int64
	if err := q.Count(&queued).Error; err != nil {
		return false, fmt.Errorf("failed to count queued changes of %s: %w", entityID, err)
	}
	if queued > 0 {
		return true, nil
	}

	if entity == models.EntityMovement {
		fs, err := s.FlowState(ctx, claimID)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		var meta struct {
			Revision int `json:"revision"`
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &meta)
		}
		return meta.Revision > 0 && fs.Revision > meta.Revision, nil
	}

	modified, ok, err := s.lastModified(ctx, entity, entityID)
	if err != nil || !ok {
		return false, err
	}
	return modified.After(queuedAt), nil
}

func (s *Store) lastModified(ctx context.Context, entity models.EntityType, id string) (time.Time, bool, error) {
	var (
		meta *models.SyncMeta
		err  error
	)
	switch entity {
	case models.EntityClaim:
		var rec *models.Claim
		if rec, err = s.Claims().GetUnscoped(ctx, id); err == nil {
			meta = rec.Meta()
		}
	case models.EntityZone:
		var rec *models.Zone
		if rec, err = s.Zones().GetUnscoped(ctx, id); err == nil {
			meta = rec.Meta()
		}
	case models.EntityPhoto:
		var rec *models.Photo
		if rec, err = s.Photos().GetUnscoped(ctx, id); err == nil {
			meta = rec.Meta()
		}
	case models.EntityDamageMarker:
		var rec *models.DamageMarker
		if rec, err = s.DamageMarkers().GetUnscoped(ctx, id); err == nil {
			meta = rec.Meta()
		}
	case models.EntityLineItem:
		var rec *models.ScopeLineItem
		if rec, err = s.LineItems().GetUnscoped(ctx, id); err == nil {
			meta = rec.Meta()
		}
	default:
		return time.Time{}, false, nil
	}
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return meta.LastModified, true, nil
}

func (s *Store) pruneDeadLetters(limit int) error {
	if limit <= 0 {
		return nil
	}

	var count int64
	if err := s.db.Model(&models.DeadLetter{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count dead letters: %w", err)
	}
	excess := int(count) - limit
	if excess <= 0 {
		return nil
	}

	var ids []string
	err := s.db.Model(&models.DeadLetter{}).
		Order("dead_at ASC, id ASC").
		Limit(excess).
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("failed to select dead letters to prune: %w", err)
	}
	return s.db.Delete(&models.DeadLetter{}, "id IN ?", ids).Error
}
