package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/FESP32/clientela-pro-sub001/internal/authorization"
	"github.com/FESP32/clientela-pro-sub001/internal/clock"
	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/FESP32/clientela-pro-sub001/internal/quota"
	tenantdomain "github.com/FESP32/clientela-pro-sub001/internal/tenant/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	QuotaSvc quota.Service
	AuthSvc  authorization.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	quotaSvc quota.Service
	authSvc  authorization.Service
}

func NewService(p Params) tenantdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tenant.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		quotaSvc: p.QuotaSvc,
		authSvc:  p.AuthSvc,
	}
}

// Create opens a new business. The creator is auto-granted the owner
// membership, and becomes current-tenant when they had none.
func (s *Service) Create(ctx context.Context, userID snowflake.ID, req tenantdomain.CreateTenantRequest) (*tenantdomain.TenantResponse, error) {
	if userID == 0 {
		return nil, tenantdomain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tenantdomain.ErrInvalidName
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, tenantdomain.ErrInvalidSlug
	}

	if err := s.quotaSvc.CheckQuota(ctx, userID, plandomain.ResourceTenant); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tenant := tenantdomain.Tenant{
		ID:        s.genID.Generate(),
		OwnerID:   userID,
		Name:      name,
		Slug:      slug,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Metadata != nil {
		tenant.Metadata = datatypes.JSONMap(req.Metadata)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&tenantdomain.Tenant{}).Where("slug = ?", slug).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return tenantdomain.ErrSlugTaken
		}

		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		member := tenantdomain.TenantMember{
			ID:        s.genID.Generate(),
			TenantID:  tenant.ID,
			UserID:    userID,
			Role:      tenantdomain.RoleOwner,
			CreatedAt: now,
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		var pointers int64
		if err := tx.Model(&tenantdomain.CurrentTenant{}).Where("user_id = ?", userID).Count(&pointers).Error; err != nil {
			return err
		}
		if pointers == 0 {
			pointer := tenantdomain.CurrentTenant{
				UserID:    userID,
				TenantID:  tenant.ID,
				UpdatedAt: now,
			}
			if err := tx.Create(&pointer).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := toTenantResponse(&tenant)
	return &resp, nil
}

// Delete removes a business and everything hanging off it. Owner only.
func (s *Service) Delete(ctx context.Context, userID, tenantID snowflake.ID) error {
	if userID == 0 {
		return tenantdomain.ErrInvalidUser
	}
	if tenantID == 0 {
		return tenantdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectTenant, authorization.ActionDelete); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		queries := []string{
			`DELETE FROM punch_entries WHERE tenant_id = ?`,
			`DELETE FROM intents WHERE tenant_id = ?`,
			`DELETE FROM redeemable_units WHERE tenant_id = ?`,
			`DELETE FROM tenant_invites WHERE tenant_id = ?`,
			`DELETE FROM tenant_members WHERE tenant_id = ?`,
			`DELETE FROM current_tenants WHERE tenant_id = ?`,
			`DELETE FROM tenants WHERE id = ?`,
		}
		for _, query := range queries {
			if err := tx.Exec(query, tenantID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (*tenantdomain.TenantResponse, error) {
	if tenantID == 0 {
		return nil, tenantdomain.ErrInvalidTenant
	}
	var tenant tenantdomain.Tenant
	if err := s.db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenantdomain.ErrNotFound
		}
		return nil, err
	}
	resp := toTenantResponse(&tenant)
	return &resp, nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID) ([]tenantdomain.TenantResponse, error) {
	if userID == 0 {
		return nil, tenantdomain.ErrInvalidUser
	}
	var tenants []tenantdomain.Tenant
	err := s.db.WithContext(ctx).
		Distinct("tenants.*").
		Joins("LEFT JOIN tenant_members ON tenant_members.tenant_id = tenants.id").
		Where("tenants.owner_id = ? OR tenant_members.user_id = ?", userID, userID).
		Order("tenants.created_at ASC").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	responses := make([]tenantdomain.TenantResponse, 0, len(tenants))
	for i := range tenants {
		responses = append(responses, toTenantResponse(&tenants[i]))
	}
	return responses, nil
}

func (s *Service) ListMembers(ctx context.Context, userID, tenantID snowflake.ID) ([]tenantdomain.MemberResponse, error) {
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectMember, authorization.ActionRead); err != nil {
		return nil, err
	}
	var members []tenantdomain.TenantMember
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	responses := make([]tenantdomain.MemberResponse, 0, len(members))
	for _, member := range members {
		responses = append(responses, tenantdomain.MemberResponse{
			UserID:    member.UserID.String(),
			Role:      member.Role,
			CreatedAt: member.CreatedAt,
		})
	}
	return responses, nil
}

// ResolveActiveTenant resolves the business currently acting for a user.
// Every degradation is an outcome with a distinguishing reason, not an error:
// callers render a tenant picker, they do not fail.
func (s *Service) ResolveActiveTenant(ctx context.Context, userID snowflake.ID) (tenantdomain.ActiveTenant, error) {
	if userID == 0 {
		return tenantdomain.ActiveTenant{}, tenantdomain.ErrInvalidUser
	}

	var pointer tenantdomain.CurrentTenant
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pointer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tenantdomain.ActiveTenant{Reason: tenantdomain.ResolveNoCurrent}, nil
		}
		return tenantdomain.ActiveTenant{}, err
	}

	var tenant tenantdomain.Tenant
	err = s.db.WithContext(ctx).Where("id = ?", pointer.TenantID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tenantdomain.ActiveTenant{Reason: tenantdomain.ResolveNotFound}, nil
		}
		return tenantdomain.ActiveTenant{}, err
	}
	if !tenant.IsActive {
		return tenantdomain.ActiveTenant{Reason: tenantdomain.ResolveInactive}, nil
	}

	role, ok, err := s.RoleOf(ctx, userID, tenant.ID)
	if err != nil {
		return tenantdomain.ActiveTenant{}, err
	}
	if !ok {
		return tenantdomain.ActiveTenant{Reason: tenantdomain.ResolveNoAccess}, nil
	}

	return tenantdomain.ActiveTenant{
		Tenant: &tenant,
		Role:   &role,
		Reason: tenantdomain.ResolveOK,
	}, nil
}

func (s *Service) SetCurrentTenant(ctx context.Context, userID, tenantID snowflake.ID) error {
	if userID == 0 {
		return tenantdomain.ErrInvalidUser
	}
	if tenantID == 0 {
		return tenantdomain.ErrInvalidTenant
	}

	_, ok, err := s.RoleOf(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return authorization.ErrForbidden
	}

	now := s.clock.Now()
	pointer := tenantdomain.CurrentTenant{
		UserID:    userID,
		TenantID:  tenantID,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).Save(&pointer).Error
}

func (s *Service) ClearCurrentTenant(ctx context.Context, userID snowflake.ID) error {
	if userID == 0 {
		return tenantdomain.ErrInvalidUser
	}
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&tenantdomain.CurrentTenant{}).Error
}

// RoleOf resolves a user's role within a tenant. An explicit membership row
// wins; absent one, ownership implies owner.
func (s *Service) RoleOf(ctx context.Context, userID, tenantID snowflake.ID) (tenantdomain.Role, bool, error) {
	var member tenantdomain.TenantMember
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&member).Error
	if err == nil {
		return member.Role, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, err
	}

	var owned int64
	if err := s.db.WithContext(ctx).
		Model(&tenantdomain.Tenant{}).
		Where("id = ? AND owner_id = ?", tenantID, userID).
		Count(&owned).Error; err != nil {
		return "", false, err
	}
	if owned > 0 {
		return tenantdomain.RoleOwner, true, nil
	}
	return "", false, nil
}

// CreateInvite grants a role on acceptance. Granting admin is reserved to the
// owner; inviting members needs admin.
func (s *Service) CreateInvite(ctx context.Context, inviterID snowflake.ID, req tenantdomain.CreateInviteRequest) (*tenantdomain.InviteResponse, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil || tenantID == 0 {
		return nil, tenantdomain.ErrInvalidTenant
	}
	inviteeID, err := snowflake.ParseString(strings.TrimSpace(req.InviteeID))
	if err != nil || inviteeID == 0 {
		return nil, tenantdomain.ErrInvalidUser
	}
	role, ok := tenantdomain.ParseRole(req.Role)
	if !ok || role == tenantdomain.RoleOwner {
		return nil, tenantdomain.ErrInvalidRole
	}

	action := authorization.ActionInvite
	if role == tenantdomain.RoleAdmin {
		action = authorization.ActionGrantAdmin
	}
	if err := s.authSvc.Authorize(ctx, inviterID, tenantID, authorization.ObjectMember, action); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&tenantdomain.TenantMember{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, inviteeID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, tenantdomain.ErrAlreadyMember
	}

	now := s.clock.Now()
	invite := tenantdomain.TenantInvite{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Role:      role,
		Status:    tenantdomain.InviteStatusPending,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return nil, err
	}

	resp := toInviteResponse(&invite)
	return &resp, nil
}

// AcceptInvite turns a pending invite into a membership. The invite flip is
// guarded on its status so a double accept cannot mint two memberships.
func (s *Service) AcceptInvite(ctx context.Context, inviteeID, inviteID snowflake.ID) (*tenantdomain.MemberResponse, error) {
	if inviteeID == 0 {
		return nil, tenantdomain.ErrInvalidUser
	}
	if inviteID == 0 {
		return nil, tenantdomain.ErrNotFound
	}

	var invite tenantdomain.TenantInvite
	err := s.db.WithContext(ctx).
		Where("id = ? AND invitee_id = ?", inviteID, inviteeID).
		First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenantdomain.ErrNotFound
		}
		return nil, err
	}
	if invite.Status != tenantdomain.InviteStatusPending {
		return nil, tenantdomain.ErrInviteClosed
	}

	now := s.clock.Now()
	var member tenantdomain.TenantMember
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE tenant_invites
			 SET status = ?, accepted_at = ?
			 WHERE id = ? AND status = ?`,
			tenantdomain.InviteStatusAccepted,
			now,
			inviteID,
			tenantdomain.InviteStatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return tenantdomain.ErrInviteClosed
		}

		member = tenantdomain.TenantMember{
			ID:        s.genID.Generate(),
			TenantID:  invite.TenantID,
			UserID:    inviteeID,
			Role:      invite.Role,
			CreatedAt: now,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	return &tenantdomain.MemberResponse{
		UserID:    member.UserID.String(),
		Role:      member.Role,
		CreatedAt: member.CreatedAt,
	}, nil
}

func toTenantResponse(tenant *tenantdomain.Tenant) tenantdomain.TenantResponse {
	return tenantdomain.TenantResponse{
		ID:        tenant.ID.String(),
		OwnerID:   tenant.OwnerID.String(),
		Name:      tenant.Name,
		Slug:      tenant.Slug,
		IsActive:  tenant.IsActive,
		CreatedAt: tenant.CreatedAt,
		UpdatedAt: tenant.UpdatedAt,
	}
}

func toInviteResponse(invite *tenantdomain.TenantInvite) tenantdomain.InviteResponse {
	return tenantdomain.InviteResponse{
		ID:        invite.ID.String(),
		TenantID:  invite.TenantID.String(),
		InviteeID: invite.InviteeID.String(),
		Role:      invite.Role,
		Status:    invite.Status,
		CreatedAt: invite.CreatedAt,
	}
}
