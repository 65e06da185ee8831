package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ResolveReason distinguishes why active-tenant resolution degraded. The
// degradations are outcomes, not errors.
type ResolveReason string

const (
	ResolveOK        ResolveReason = "ok"
	ResolveNoCurrent ResolveReason = "no_current"
	ResolveNotFound  ResolveReason = "not_found"
	ResolveInactive  ResolveReason = "inactive"
	ResolveNoAccess  ResolveReason = "no_access"
)

type CreateTenantRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type TenantResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MemberResponse struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveTenant is the result of resolving the acting business for a user.
// Tenant and Role are nil when Reason is not ResolveOK.
type ActiveTenant struct {
	Tenant *Tenant
	Role   *Role
	Reason ResolveReason
}

type CreateInviteRequest struct {
	TenantID  string `json:"tenant_id"`
	InviteeID string `json:"invitee_id"`
	Role      string `json:"role"`
}

type InviteResponse struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenant_id"`
	InviteeID string       `json:"invitee_id"`
	Role      Role         `json:"role"`
	Status    InviteStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateTenantRequest) (*TenantResponse, error)
	Delete(ctx context.Context, userID, tenantID snowflake.ID) error
	Get(ctx context.Context, tenantID snowflake.ID) (*TenantResponse, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]TenantResponse, error)
	ListMembers(ctx context.Context, userID, tenantID snowflake.ID) ([]MemberResponse, error)

	// ResolveActiveTenant resolves the business currently acting for the
	// user. Degradations are reported through the reason, never as errors.
	ResolveActiveTenant(ctx context.Context, userID snowflake.ID) (ActiveTenant, error)
	SetCurrentTenant(ctx context.Context, userID, tenantID snowflake.ID) error
	ClearCurrentTenant(ctx context.Context, userID snowflake.ID) error

	// RoleOf resolves the user's role within the tenant. An explicit
	// membership row wins; absent one, ownership implies owner.
	RoleOf(ctx context.Context, userID, tenantID snowflake.ID) (Role, bool, error)

	CreateInvite(ctx context.Context, inviterID snowflake.ID, req CreateInviteRequest) (*InviteResponse, error)
	AcceptInvite(ctx context.Context, inviteeID, inviteID snowflake.ID) (*MemberResponse, error)
}

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidSlug   = errors.New("invalid_slug")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrNotFound      = errors.New("not_found")
	ErrSlugTaken     = errors.New("slug_taken")
	ErrAlreadyMember = errors.New("already_member")
	ErrInviteClosed  = errors.New("invite_closed")
)
