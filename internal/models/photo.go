package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a lifecycle change is not allowed
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// PhotoLifecycle tracks the binary payload of a photo
type PhotoLifecycle string

const (
	PhotoCaptured  PhotoLifecycle = "captured"
	PhotoQueued    PhotoLifecycle = "queued"
	PhotoUploading PhotoLifecycle = "uploading"
	PhotoSynced    PhotoLifecycle = "synced"
	PhotoFailed    PhotoLifecycle = "failed"
)

// photoTransitions lists the allowed next states.
// uploading -> uploading covers a restart after a crash mid-upload,
// uploading -> queued a re-capture while the previous blob is in flight.
var photoTransitions = map[PhotoLifecycle][]PhotoLifecycle{
	PhotoCaptured:  {PhotoQueued},
	PhotoQueued:    {PhotoQueued, PhotoUploading},
	PhotoUploading: {PhotoUploading, PhotoSynced, PhotoFailed, PhotoQueued},
	PhotoSynced:    {PhotoQueued},
	PhotoFailed:    {PhotoQueued, PhotoUploading},
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to PhotoLifecycle) bool {
	for _, next := range photoTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Photo holds a captured image. Blob is present until the upload is
// confirmed and is then cleared while the metadata row stays.
type Photo struct {
	ID              string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ClaimID         string         `gorm:"type:varchar(64);not null;index;index:idx_photo_claim_tag,priority:1" json:"claimId"`
	ZoneID          *string        `gorm:"type:varchar(64);index" json:"zoneId,omitempty"`
	Tag             string         `gorm:"type:varchar(255);index:idx_photo_claim_tag,priority:2" json:"tag"`
	Blob            []byte         `json:"-"`
	Thumbnail       []byte         `json:"-"`
	BlobSealed      bool           `json:"blobSealed"`
	SizeBytes       int64          `json:"sizeBytes"`
	ContentType     string         `gorm:"type:varchar(100)" json:"contentType"`
	Filename        string         `gorm:"type:varchar(255)" json:"filename"`
	Latitude        *float64       `json:"latitude,omitempty"`
	Longitude       *float64       `json:"longitude,omitempty"`
	MovementID      *string        `gorm:"type:varchar(64)" json:"movementId,omitempty"`
	RemoteID        *string        `gorm:"type:varchar(64)" json:"remoteId,omitempty"`
	UploadProgress  int            `json:"uploadProgress"`
	Lifecycle       PhotoLifecycle `gorm:"type:varchar(20);not null" json:"lifecycle"`
	CaptureRevision int            `json:"captureRevision"`
	SyncMeta
}

// TableName specifies the table name
func (Photo) TableName() string {
	return "photos"
}

func (p *Photo) GetEntityID() string       { return p.ID }
func (p *Photo) GetEntityType() EntityType { return EntityPhoto }
func (p *Photo) GetClaimID() string        { return p.ClaimID }

// Transition moves the photo to the next lifecycle state
func (p *Photo) Transition(to PhotoLifecycle) error {
	from := p.Lifecycle
	if from == "" {
		from = PhotoCaptured
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: photo %s %s -> %s", ErrInvalidTransition, p.ID, from, to)
	}
	p.Lifecycle = to
	return nil
}

// HasBlob reports whether the binary payload is still on the device
func (p *Photo) HasBlob() bool {
	return len(p.Blob) > 0
}
