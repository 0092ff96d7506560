package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/xelth-com/claimsync/internal/models"
	"gorm.io/gorm"
)

// NewQueueID returns a monotonically increasing queue item id
func NewQueueID() string {
	return ulid.Make().String()
}

// Enqueue appends item to the sync queue
func (s *Store) Enqueue(ctx context.Context, item *models.SyncQueueItem) error {
	if item.ID == "" {
		item.ID = NewQueueID()
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = models.DefaultMaxAttempts
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", item.Action, item.Entity, err)
	}
	return nil
}

// QueueItems returns every queued item in insertion order
func (s *Store) QueueItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	var items []models.SyncQueueItem
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load sync queue: %w", err)
	}
	return items, nil
}

// QueueItem returns one queue item
func (s *Store) QueueItem(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	var item models.SyncQueueItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// QueueItemsForEntity returns the queued mutations of one entity in order
func (s *Store) QueueItemsForEntity(ctx context.Context, entity models.EntityType, entityID string) ([]models.SyncQueueItem, error) {
	var items []models.SyncQueueItem
	err := s.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load queue for %s %s: %w", entity, entityID, err)
	}
	return items, nil
}

// QueueLength returns the number of queued items
func (s *Store) QueueLength(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SyncQueueItem{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return count, nil
}

// PendingCountForClaim returns the number of queued mutations for a claim
func (s *Store) PendingCountForClaim(ctx context.Context, claimID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.SyncQueueItem{}).
		Where("claim_id = ?", claimID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items for claim %s: %w", claimID, err)
	}
	return count, nil
}

// DeleteQueueItem removes one queue item
func (s *Store) DeleteQueueItem(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.SyncQueueItem{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete queue item %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordQueueFailure stores the error and bumps attempts by exactly one
func (s *Store) RecordQueueFailure(ctx context.Context, id string, message string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.SyncQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":     gorm.Expr("attempts + 1"),
			"last_attempt": now,
			"error":        message,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record failure on queue item %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteQueueItem removes a successfully replayed item and settles the
// record behind it: synced when nothing else is queued for it, purged when
// it was a confirmed delete of a tombstone.
func (s *Store) CompleteQueueItem(ctx context.Context, item models.SyncQueueItem) error {
	return s.WithTx(ctx, func(tx *Store) error {
		res := tx.db.Delete(&models.SyncQueueItem{}, "id = ?", item.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to delete queue item %s: %w", item.ID, res.Error)
		}

		table, ok := models.EntityTable(item.Entity)
		if !ok {
			return nil
		}

		// older exhausted items are superseded by this one
		var remaining int64
		err := tx.db.Model(&models.SyncQueueItem{}).
			Where("entity = ? AND entity_id = ?", item.Entity, item.EntityID).
			Where("(attempts < max_attempts OR id > ?)", item.ID).
			Count(&remaining).Error
		if err != nil {
			return fmt.Errorf("failed to count remaining items for %s: %w", item.EntityID, err)
		}

		if remaining > 0 {
			return tx.db.Table(table).
				Where("id = ? AND sync_status = ?", item.EntityID, models.SyncStatusUploading).
				Update("sync_status", models.SyncStatusPending).Error
		}

		if item.Action == models.ActionDelete {
			return tx.db.Exec("DELETE FROM "+table+" WHERE id = ? AND deleted_at IS NOT NULL", item.EntityID).Error
		}

		return tx.db.Table(table).
			Where("id = ?", item.EntityID).
			Update("sync_status", models.SyncStatusSynced).Error
	})
}
