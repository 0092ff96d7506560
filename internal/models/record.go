package models

import (
	"time"

	"gorm.io/gorm"
)

// SyncStatus is the per-record replication state
type SyncStatus string

const (
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusUploading SyncStatus = "uploading"
	SyncStatusConflict  SyncStatus = "conflict"
)

// EntityType names a kind of queued mutation
type EntityType string

const (
	EntityClaim        EntityType = "claim"
	EntityZone         EntityType = "zone"
	EntityPhoto        EntityType = "photo"
	EntityDamageMarker EntityType = "damage_marker"
	EntityMovement     EntityType = "movement"
	EntityLineItem     EntityType = "line_item"
)

// SyncMeta is embedded in every syncable record.
// DeletedAt turns deletes into tombstones until the remote delete is confirmed.
type SyncMeta struct {
	SyncStatus   SyncStatus     `gorm:"type:varchar(20);not null;index" json:"syncStatus"`
	LastModified time.Time      `gorm:"not null" json:"lastModified"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Meta exposes the embedded sync metadata
func (m *SyncMeta) Meta() *SyncMeta {
	return m
}

// Touch demotes the record to status and stamps LastModified
func (m *SyncMeta) Touch(status SyncStatus) {
	m.SyncStatus = status
	m.LastModified = time.Now().UTC()
}

// EntityTable maps an entity type to its backing table.
// Movements have no table of their own.
func EntityTable(entity EntityType) (string, bool) {
	switch entity {
	case EntityClaim:
		return Claim{}.TableName(), true
	case EntityZone:
		return Zone{}.TableName(), true
	case EntityPhoto:
		return Photo{}.TableName(), true
	case EntityDamageMarker:
		return DamageMarker{}.TableName(), true
	case EntityLineItem:
		return ScopeLineItem{}.TableName(), true
	}
	return "", false
}
