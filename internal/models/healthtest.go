package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HealthTest is a catalog entry (audiometry, spirometry, ...) that quote items may reference.
type HealthTest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Code         string              `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name         string              `gorm:"size:255;not null" json:"name"`
	Description  string              `gorm:"type:text" json:"description,omitempty"`
	DefaultPrice decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"defaultPrice"`
	Active       bool                `gorm:"not null;default:true" json:"active"`
}

// HealthTestSnapshot is the read-only decoration attached to quote items.
type HealthTestSnapshot struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Snapshot returns the display fields of the test.
func (h *HealthTest) Snapshot() HealthTestSnapshot {
	return HealthTestSnapshot{ID: h.ID, Name: h.Name, Code: h.Code}
}
