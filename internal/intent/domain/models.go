package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the stored intent lifecycle state. Transitions are monotonic
// through the public contract; the only sanctioned backward step is the
// consumed-to-pending compensation revert.
type Status string

const (
	StatusPending  Status = "pending"
	StatusConsumed Status = "consumed"
	StatusClaimed  Status = "claimed"
	StatusCanceled Status = "canceled"
)

// StatusExpired is a derived display state. It is never stored: a pending
// intent past its expiry simply becomes permanently unconsumable.
const StatusExpired Status = "expired"

// Intent is a redeemable unit of value: one stamp punch, one gift hand-out or
// one referral reward. Bulk creation materializes independent rows, so sibling
// intents never contend.
type Intent struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	UnitID      snowflake.ID  `gorm:"not null;index"`
	TenantID    snowflake.ID  `gorm:"not null;index"`
	Kind        Kind          `gorm:"type:text;not null;index"`
	CustomerID  *snowflake.ID `gorm:"index"`
	Note        string        `gorm:"type:text"`
	ExpiresAt   *time.Time    `gorm:""`
	Status      Status        `gorm:"type:text;not null;default:'pending'"`
	ConsumedBy  *snowflake.ID `gorm:""`
	ConsumedAt  *time.Time    `gorm:""`
	FinalizedAt *time.Time    `gorm:""`
	CanceledAt  *time.Time    `gorm:""`
	CreatedBy   snowflake.ID  `gorm:"not null"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Intent) TableName() string { return "intents" }

// Expired reports whether the intent's optional expiry has passed.
func (i Intent) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// DisplayStatus derives the caller-facing state without mutating the stored
// one.
func (i Intent) DisplayStatus(now time.Time) Status {
	if i.Status == StatusPending && i.Expired(now) {
		return StatusExpired
	}
	return i.Status
}

// AssignedTo reports whether the intent is pre-assigned to a customer other
// than the given one. An unassigned intent is open to any customer.
func (i Intent) AssignedToOther(customerID snowflake.ID) bool {
	return i.CustomerID != nil && *i.CustomerID != customerID
}
