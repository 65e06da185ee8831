package domain

import (
	"time"

	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UnitStatus is the redeemable unit lifecycle state.
type UnitStatus string

const (
	UnitStatusActive   UnitStatus = "active"
	UnitStatusInactive UnitStatus = "inactive"
	UnitStatusFinished UnitStatus = "finished"
)

// RedeemableUnit is a stamp card, gift, referral program or survey owned by a
// tenant. Intents hang off a unit and are deleted with it.
type RedeemableUnit struct {
	ID        snowflake.ID            `gorm:"primaryKey"`
	TenantID  snowflake.ID            `gorm:"not null;index"`
	Kind      plandomain.ResourceKind `gorm:"type:text;not null;index"`
	Name      string                  `gorm:"type:text;not null"`
	Status    UnitStatus              `gorm:"type:text;not null;default:'active'"`
	ValidFrom *time.Time              `gorm:""`
	ValidTo   *time.Time              `gorm:""`
	CreatedBy snowflake.ID            `gorm:"not null"`
	Metadata  datatypes.JSONMap       `gorm:"type:jsonb"`
	CreatedAt time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RedeemableUnit) TableName() string { return "redeemable_units" }

// WithinValidity reports whether the unit's optional validity window covers
// the given instant.
func (u RedeemableUnit) WithinValidity(now time.Time) bool {
	if u.ValidFrom != nil && now.Before(*u.ValidFrom) {
		return false
	}
	if u.ValidTo != nil && now.After(*u.ValidTo) {
		return false
	}
	return true
}
