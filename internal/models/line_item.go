package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScopeLineItem is one estimate line of a claim
type ScopeLineItem struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ClaimID     string          `gorm:"type:varchar(64);not null;index" json:"claimId"`
	ZoneID      *string         `gorm:"type:varchar(64);index" json:"zoneId,omitempty"`
	Code        string          `gorm:"type:varchar(64);index" json:"code"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(14,4)" json:"quantity"`
	Unit        string          `gorm:"type:varchar(16)" json:"unit"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(14,4)" json:"unitPrice"`
	SyncMeta
}

// TableName specifies the table name
func (ScopeLineItem) TableName() string {
	return "scope_line_items"
}

func (l *ScopeLineItem) GetEntityID() string       { return l.ID }
func (l *ScopeLineItem) GetEntityType() EntityType { return EntityLineItem }
func (l *ScopeLineItem) GetClaimID() string        { return l.ClaimID }

// Total returns quantity times unit price
func (l *ScopeLineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// CachedLineItem is a read-only catalog row kept for offline search.
// It is never enqueued.
type CachedLineItem struct {
	Code        string          `gorm:"primaryKey;type:varchar(64)" json:"code"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(14,4)" json:"price"`
	Category    string          `gorm:"type:varchar(100);index" json:"category"`
	Unit        string          `gorm:"type:varchar(16)" json:"unit"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TableName specifies the table name
func (CachedLineItem) TableName() string {
	return "cached_line_items"
}
