package store

import (
	"context"
	"fmt"

	"github.com/xelth-com/claimsync/internal/models"
)

// StorageStats summarizes what the device is holding
type StorageStats struct {
	Claims         int64 `json:"claims"`
	Zones          int64 `json:"zones"`
	Photos         int64 `json:"photos"`
	PhotosWithBlob int64 `json:"photosWithBlob"`
	BlobBytes      int64 `json:"blobBytes"`
	DamageMarkers  int64 `json:"damageMarkers"`
	LineItems      int64 `json:"lineItems"`
	FlowStates     int64 `json:"flowStates"`
	CatalogItems   int64 `json:"catalogItems"`
	PendingRecords int64 `json:"pendingRecords"`
	QueueLength    int64 `json:"queueLength"`
	ExhaustedItems int64 `json:"exhaustedItems"`
	DeadLetters    int64 `json:"deadLetters"`
}

// StorageStats counts records, queued work and retained blob bytes
func (s *Store) StorageStats(ctx context.Context) (*StorageStats, error) {
	db := s.db.WithContext(ctx)
	stats := &StorageStats{}

	counts := []struct {
		model interface{}
		dst   *int64
	}{
		{&models.Claim{}, &stats.Claims},
		{&models.Zone{}, &stats.Zones},
		{&models.Photo{}, &stats.Photos},
		{&models.DamageMarker{}, &stats.DamageMarkers},
		{&models.ScopeLineItem{}, &stats.LineItems},
		{&models.FlowState{}, &stats.FlowStates},
		{&models.CachedLineItem{}, &stats.CatalogItems},
		{&models.SyncQueueItem{}, &stats.QueueLength},
		{&models.DeadLetter{}, &stats.DeadLetters},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count %T: %w", c.model, err)
		}
	}

	if err := db.Model(&models.Photo{}).Where("blob IS NOT NULL").Count(&stats.PhotosWithBlob).Error; err != nil {
		return nil, fmt.Errorf("failed to count photo blobs: %w", err)
	}
	err := db.Model(&models.Photo{}).
		Where("blob IS NOT NULL").
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&stats.BlobBytes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum photo blobs: %w", err)
	}
	if err := db.Model(&models.SyncQueueItem{}).Where("attempts >= max_attempts").Count(&stats.ExhaustedItems).Error; err != nil {
		return nil, fmt.Errorf("failed to count exhausted items: %w", err)
	}

	for _, entity := range []models.EntityType{
		models.EntityClaim, models.EntityZone, models.EntityPhoto, models.EntityDamageMarker, models.EntityLineItem,
	} {
		table, _ := models.EntityTable(entity)
		var n int64
		err := db.Table(table).
			Where("deleted_at IS NULL AND sync_status IN ?", []string{string(models.SyncStatusPending), string(models.SyncStatusUploading)}).
			Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count pending %s records: %w", entity, err)
		}
		stats.PendingRecords += n
	}

	return stats, nil
}
