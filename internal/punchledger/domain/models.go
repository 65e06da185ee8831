package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PunchEntry is the immutable ledger record behind a consumed stamp intent.
// One entry per intent; the unique index is the backstop against double
// recording.
type PunchEntry struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	IntentID   snowflake.ID `gorm:"not null;uniqueIndex"`
	UnitID     snowflake.ID `gorm:"not null;index"`
	TenantID   snowflake.ID `gorm:"not null;index"`
	CustomerID snowflake.ID `gorm:"not null;index"`
	RecordedAt time.Time    `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PunchEntry) TableName() string { return "punch_entries" }
