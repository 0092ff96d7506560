package models

// SyncableEntity is implemented by every record that reaches the remote API
// through the sync queue
type SyncableEntity interface {
	GetEntityID() string
	GetEntityType() EntityType
	GetClaimID() string
	Meta() *SyncMeta
}
