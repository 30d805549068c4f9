package models

import (
	"time"

	"github.com/fatflowers/billing/pkg/types"
)

// Company is the slice of the tenant aggregate billing reads and writes.
// The rest of the company lives with the CRUD services.
type Company struct {
	ID          string         `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Name        string         `gorm:"column:name;type:varchar(255)" json:"name"`
	PlanTier    types.PlanTier `gorm:"column:plan_tier;type:varchar(32);not null;default:FREE" json:"plan_tier"`
	SeatCeiling int            `gorm:"column:seat_ceiling;not null;default:0" json:"seat_ceiling"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Company) TableName() string {
	return "company"
}
