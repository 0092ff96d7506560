package models

import (
	"time"

	"gorm.io/datatypes"
)

// Claim is the root aggregate; every other record references it by ClaimID
type Claim struct {
	ID              string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ClaimNumber     string         `gorm:"type:varchar(64);index" json:"claimNumber"`
	InsuredName     string         `gorm:"type:varchar(255)" json:"insuredName"`
	PropertyAddress string         `gorm:"type:text" json:"propertyAddress"`
	PerilType       string         `gorm:"type:varchar(50)" json:"perilType"`
	Status          string         `gorm:"type:varchar(50)" json:"status"`
	DateOfLoss      *time.Time     `json:"dateOfLoss,omitempty"`
	Data            datatypes.JSON `json:"data,omitempty"`
	SyncMeta
}

// TableName specifies the table name
func (Claim) TableName() string {
	return "claims"
}

func (c *Claim) GetEntityID() string       { return c.ID }
func (c *Claim) GetEntityType() EntityType { return EntityClaim }
func (c *Claim) GetClaimID() string        { return c.ID }

// Zone is a room or area of a claim with its measured geometry
type Zone struct {
	ID                   string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ClaimID              string         `gorm:"type:varchar(64);not null;index" json:"claimId"`
	Name                 string         `gorm:"type:varchar(255)" json:"name"`
	ZoneType             string         `gorm:"type:varchar(50)" json:"zoneType"`
	Geometry             datatypes.JSON `json:"geometry,omitempty"`
	CalculatedDimensions datatypes.JSON `json:"calculatedDimensions,omitempty"`
	SyncMeta
}

// TableName specifies the table name
func (Zone) TableName() string {
	return "zones"
}

func (z *Zone) GetEntityID() string       { return z.ID }
func (z *Zone) GetEntityType() EntityType { return EntityZone }
func (z *Zone) GetClaimID() string        { return z.ClaimID }

// DamageMarker pins observed damage to a position inside a zone
type DamageMarker struct {
	ID         string                      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ZoneID     string                      `gorm:"type:varchar(64);not null;index" json:"zoneId"`
	ClaimID    string                      `gorm:"type:varchar(64);not null;index" json:"claimId"`
	Severity   string                      `gorm:"type:varchar(20)" json:"severity"`
	DamageType string                      `gorm:"type:varchar(50)" json:"damageType"`
	Position   datatypes.JSON              `json:"position,omitempty"`
	PhotoIDs   datatypes.JSONSlice[string] `json:"photoIds,omitempty"`
	SyncMeta
}

// TableName specifies the table name
func (DamageMarker) TableName() string {
	return "damage_markers"
}

func (d *DamageMarker) GetEntityID() string       { return d.ID }
func (d *DamageMarker) GetEntityType() EntityType { return EntityDamageMarker }
func (d *DamageMarker) GetClaimID() string        { return d.ClaimID }
