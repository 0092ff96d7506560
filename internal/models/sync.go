package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncAction is the kind of mutation a queue item replays
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// DefaultMaxAttempts is used when a queue item is enqueued without a limit
const DefaultMaxAttempts = 5

// SyncQueueItem is one outstanding mutation. IDs are ULIDs so ordering by
// ID is insertion order.
type SyncQueueItem struct {
	ID          string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Action      SyncAction     `gorm:"type:varchar(10);not null" json:"action"`
	Entity      EntityType     `gorm:"type:varchar(20);not null;index:idx_queue_entity,priority:1" json:"entity"`
	EntityID    string         `gorm:"type:varchar(64);not null;index:idx_queue_entity,priority:2" json:"entityId"`
	ClaimID     string         `gorm:"type:varchar(64);index" json:"claimId"`
	Payload     datatypes.JSON `json:"payload"`
	Attempts    int            `gorm:"not null" json:"attempts"`
	MaxAttempts int            `gorm:"not null" json:"maxAttempts"`
	LastAttempt *time.Time     `json:"lastAttempt,omitempty"`
	Error       *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TableName specifies the table name
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// Exhausted reports whether the item reached its attempt ceiling
func (q *SyncQueueItem) Exhausted() bool {
	return q.Attempts >= q.MaxAttempts
}

// DeadLetter is an exhausted queue item moved out of the queue by an operator
type DeadLetter struct {
	ID          string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Action      SyncAction     `gorm:"type:varchar(10);not null" json:"action"`
	Entity      EntityType     `gorm:"type:varchar(20);not null" json:"entity"`
	EntityID    string         `gorm:"type:varchar(64);not null;index" json:"entityId"`
	ClaimID     string         `gorm:"type:varchar(64);index" json:"claimId"`
	Payload     datatypes.JSON `json:"payload"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"maxAttempts"`
	LastError   *string        `gorm:"type:text" json:"lastError,omitempty"`
	QueuedAt    time.Time      `json:"queuedAt"`
	DeadAt      time.Time      `gorm:"index" json:"deadAt"`
}

// TableName specifies the table name
func (DeadLetter) TableName() string {
	return "sync_dead_letters"
}

// AllModels lists every table of the local store in migration order
func AllModels() []interface{} {
	return []interface{}{
		&Claim{},
		&Zone{},
		&Photo{},
		&DamageMarker{},
		&FlowState{},
		&ScopeLineItem{},
		&CachedLineItem{},
		&SyncQueueItem{},
		&DeadLetter{},
	}
}
