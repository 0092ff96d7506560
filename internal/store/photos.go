package store

import (
	"context"
	"fmt"

	"github.com/xelth-com/claimsync/internal/models"
)

// PhotosByTag returns the photos of a claim whose tag starts with prefix.
// Blobs are not loaded.
func (s *Store) PhotosByTag(ctx context.Context, claimID, prefix string) ([]models.Photo, error) {
	var photos []models.Photo
	err := s.db.WithContext(ctx).
		Omit("blob").
		Where(`claim_id = ? AND tag LIKE ? ESCAPE '\'`, claimID, likeEscape(prefix)+"%").
		Order("tag ASC, id ASC").
		Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query photos for claim %s: %w", claimID, err)
	}
	return photos, nil
}

// BeginPhotoUpload moves a photo to uploading and returns it with its blob.
// A photo that is already synced without a blob is returned unchanged.
func (s *Store) BeginPhotoUpload(ctx context.Context, id string) (*models.Photo, error) {
	var photo *models.Photo
	err := s.WithTx(ctx, func(tx *Store) error {
		p, err := tx.Photos().Get(ctx, id)
		if err != nil {
			return err
		}
		photo = p
		if p.Lifecycle == models.PhotoSynced && !p.HasBlob() {
			return nil
		}
		if err := p.Transition(models.PhotoUploading); err != nil {
			return err
		}
		p.SyncStatus = models.SyncStatusUploading
		p.UploadProgress = 0
		return tx.db.Model(&models.Photo{}).Where("id = ?", id).Updates(map[string]interface{}{
			"lifecycle":       p.Lifecycle,
			"sync_status":     p.SyncStatus,
			"upload_progress": 0,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return photo, nil
}

// UpdatePhotoProgress stores the upload percentage
func (s *Store) UpdatePhotoProgress(ctx context.Context, id string, progress int) error {
	err := s.db.WithContext(ctx).Model(&models.Photo{}).
		Where("id = ?", id).
		Update("upload_progress", progress).Error
	if err != nil {
		return fmt.Errorf("failed to update progress of photo %s: %w", id, err)
	}
	return nil
}

// CompletePhotoUpload clears the blob of a confirmed upload and keeps the
// metadata. It returns false when the photo was re-captured after the
// upload started; the new blob is then kept for its own queue item.
func (s *Store) CompletePhotoUpload(ctx context.Context, id string, revision int, remoteID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Photo{}).
		Where("id = ? AND capture_revision = ?", id, revision).
		Updates(map[string]interface{}{
			"blob":            nil,
			"blob_sealed":     false,
			"lifecycle":       models.PhotoSynced,
			"upload_progress": 100,
			"remote_id":       remoteID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete upload of photo %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FailPhotoUpload returns the photo to pending with its blob retained
func (s *Store) FailPhotoUpload(ctx context.Context, id string, revision int) error {
	err := s.db.WithContext(ctx).Model(&models.Photo{}).
		Where("id = ? AND capture_revision = ?", id, revision).
		Updates(map[string]interface{}{
			"lifecycle":       models.PhotoFailed,
			"sync_status":     models.SyncStatusPending,
			"upload_progress": 0,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark upload of photo %s failed: %w", id, err)
	}
	return nil
}

// DropPhotoBlob releases the payload of a photo, tombstoned or not
func (s *Store) DropPhotoBlob(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Unscoped().Model(&models.Photo{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"blob": nil, "blob_sealed": false}).Error
	if err != nil {
		return fmt.Errorf("failed to drop blob of photo %s: %w", id, err)
	}
	return nil
}
