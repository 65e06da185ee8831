package authorization

import (
	"context"
	"errors"
	"strings"

	tenantdomain "github.com/FESP32/clientela-pro-sub001/internal/tenant/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.Enforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.Enforcer
}

func NewService(p ServiceParam) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize resolves the caller's role within the tenant and enforces the
// role policy. Non-members are denied without revealing whether the tenant's
// resources exist.
func (s *ServiceImpl) Authorize(ctx context.Context, userID, tenantID snowflake.ID, object, action string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	if tenantID == 0 {
		return ErrInvalidTenant
	}
	if strings.TrimSpace(object) == "" {
		return ErrInvalidObject
	}
	if strings.TrimSpace(action) == "" {
		return ErrInvalidAction
	}

	role, ok, err := s.resolveRole(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}

	allowed, err := s.enforcer.Enforce("role:"+string(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("user_id", userID.String()),
			zap.String("tenant_id", tenantID.String()),
			zap.String("role", string(role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// resolveRole prefers an explicit membership row; absent one, tenant
// ownership implies owner.
func (s *ServiceImpl) resolveRole(ctx context.Context, userID, tenantID snowflake.ID) (tenantdomain.Role, bool, error) {
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
