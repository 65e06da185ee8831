package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Role is the closed set of membership roles within a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole normalizes a raw role value.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleMember:
		return RoleMember, true
	}
	return "", false
}

// Tenant is a business account scoping ownership of redeemable units and
// intents.
type Tenant struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	OwnerID   snowflake.ID      `gorm:"not null;index"`
	Name      string            `gorm:"type:text;not null"`
	Slug      string            `gorm:"type:text;not null;uniqueIndex"`
	IsActive  bool              `gorm:"not null;default:true"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// TenantMember is a (tenant, user) membership row.
type TenantMember struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_tenant_members_tenant_user,priority:1"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_tenant_members_tenant_user,priority:2"`
	Role      Role         `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TenantMember) TableName() string { return "tenant_members" }

// CurrentTenant is the per-user pointer to the acting business. At most one
// row per user; optional.
type CurrentTenant struct {
	UserID    snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;index"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CurrentTenant) TableName() string { return "current_tenants" }

// InviteStatus is the invite lifecycle state.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRevoked  InviteStatus = "revoked"
)

// TenantInvite grants a role to a user once accepted.
type TenantInvite struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	TenantID   snowflake.ID  `gorm:"not null;index"`
	InviterID  snowflake.ID  `gorm:"not null"`
	InviteeID  snowflake.ID  `gorm:"not null;index"`
	Role       Role          `gorm:"type:text;not null"`
	Status     InviteStatus  `gorm:"type:text;not null;default:'pending'"`
	AcceptedAt *time.Time    `gorm:""`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TenantInvite) TableName() string { return "tenant_invites" }
