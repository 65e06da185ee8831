package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ResourceKind names a countable resource governed by plan quotas.
type ResourceKind string

const (
	ResourceStampCard       ResourceKind = "stamp_card"
	ResourceGift            ResourceKind = "gift"
	ResourceReferralProgram ResourceKind = "referral_program"
	ResourceSurvey          ResourceKind = "survey"
	ResourceTenant          ResourceKind = "tenant"
)

// Valid reports whether the kind is part of the closed set.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceStampCard, ResourceGift, ResourceReferralProgram, ResourceSurvey, ResourceTenant:
		return true
	}
	return false
}

// PlanCodeFree is the fallback plan every installation must carry.
const PlanCodeFree = "free"

// Plan is a subscription plan with per-resource-kind maximum counts.
type Plan struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	Code                string       `gorm:"type:text;not null;uniqueIndex"`
	Name                string       `gorm:"type:text;not null"`
	IsActive            bool         `gorm:"not null;default:true"`
	MaxStampCards       int64        `gorm:"not null;default:0"`
	MaxGifts            int64        `gorm:"not null;default:0"`
	MaxReferralPrograms int64        `gorm:"not null;default:0"`
	MaxSurveys          int64        `gorm:"not null;default:0"`
	MaxTenants          int64        `gorm:"not null;default:0"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// MaxFor returns the plan's cap for a resource kind.
func (p Plan) MaxFor(kind ResourceKind) (int64, bool) {
	switch kind {
	case ResourceStampCard:
		return p.MaxStampCards, true
	case ResourceGift:
		return p.MaxGifts, true
	case ResourceReferralProgram:
		return p.MaxReferralPrograms, true
	case ResourceSurvey:
		return p.MaxSurveys, true
	case ResourceTenant:
		return p.MaxTenants, true
	}
	return 0, false
}

// SubscriptionStatus is the paid-subscription lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Subscription ties a tenant owner to a paid plan. The effective plan falls
// back to the free plan when no active unexpired subscription exists.
type Subscription struct {
	ID        snowflake.ID       `gorm:"primaryKey"`
	OwnerID   snowflake.ID       `gorm:"not null;index"`
	PlanID    snowflake.ID       `gorm:"not null;index"`
	Status    SubscriptionStatus `gorm:"type:text;not null"`
	ExpiresAt *time.Time         `gorm:""`
	CreatedAt time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
