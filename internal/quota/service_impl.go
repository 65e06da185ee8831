package quota

import (
	"context"
	"errors"
	"time"

	"github.com/FESP32/clientela-pro-sub001/internal/cache"
	"github.com/FESP32/clientela-pro-sub001/internal/clock"
	"github.com/FESP32/clientela-pro-sub001/internal/observability/metrics"
	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const planCacheTTL = 30 * time.Second

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	PlanCache cache.PlanResolverCache
	Metrics   *metrics.RedemptionMetrics `optional:"true"`
}

type ServiceImpl struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	planCache cache.PlanResolverCache
	metrics   *metrics.RedemptionMetrics
}

func NewService(p ServiceParam) Service {
	return &ServiceImpl{
		db:        p.DB,
		log:       p.Log.Named("quota.service"),
		clock:     p.Clock,
		planCache: p.PlanCache,
		metrics:   p.Metrics,
	}
}

func (s *ServiceImpl) CheckQuota(ctx context.Context, ownerID snowflake.ID, kind plandomain.ResourceKind) error {
	if ownerID == 0 {
		return ErrInvalidOwner
	}
	if !kind.Valid() {
		return ErrInvalidKind
	}

	plan, err := s.EffectivePlan(ctx, ownerID)
	if err != nil {
		return err
	}

	max, ok := plan.MaxFor(kind)
	if !ok {
		return ErrInvalidKind
	}

	count, err := s.countOwned(ctx, ownerID, kind)
	if err != nil {
		return err
	}

	if count >= max {
		// The cached plan may predate an upgrade. A deny is the rare path,
		// so confirm it against a fresh resolution before rejecting.
		plan, err = s.refreshPlan(ctx, ownerID)
		if err != nil {
			return err
		}
		if max, ok = plan.MaxFor(kind); !ok {
			return ErrInvalidKind
		}
	}

	if count >= max {
		s.metrics.IncQuotaDenied(string(kind))
		s.log.Info("quota denied",
			zap.String("owner_id", ownerID.String()),
			zap.String("kind", string(kind)),
			zap.Int64("count", count),
			zap.Int64("max", max),
		)
		return ErrQuotaExceeded
	}
	return nil
}

// EffectivePlan resolves the owner's plan, memoized briefly. The free plan is
// a hard installation requirement; its absence is a configuration error.
func (s *ServiceImpl) EffectivePlan(ctx context.Context, ownerID snowflake.ID) (plandomain.Plan, error) {
	if ownerID == 0 {
		return plandomain.Plan{}, ErrInvalidOwner
	}

	if cached, ok := s.planCache.Get(ownerID); ok {
		return cached, nil
	}

	plan, err := s.resolvePlan(ctx, ownerID)
	if err != nil {
		return plandomain.Plan{}, err
	}

	s.planCache.Set(ownerID, plan, planCacheTTL)
	return plan, nil
}

// refreshPlan drops the owner's cached plan and resolves it from the database.
func (s *ServiceImpl) refreshPlan(ctx context.Context, ownerID snowflake.ID) (plandomain.Plan, error) {
	s.planCache.Invalidate(ownerID)
	return s.EffectivePlan(ctx, ownerID)
}

func (s *ServiceImpl) resolvePlan(ctx context.Context, ownerID snowflake.ID) (plandomain.Plan, error) {
	now := s.clock.Now()

	var plan plandomain.Plan
	err := s.db.WithContext(ctx).
		Table("plans").
		Joins("JOIN subscriptions ON subscriptions.plan_id = plans.id").
		Where("subscriptions.owner_id = ? AND subscriptions.status = ?", ownerID, plandomain.SubscriptionStatusActive).
		Where("subscriptions.expires_at IS NULL OR subscriptions.expires_at > ?", now).
		Where("plans.is_active = ?", true).
		Order("subscriptions.created_at DESC").
		First(&plan).Error
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return plandomain.Plan{}, err
	}

	err = s.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", plandomain.PlanCodeFree, true).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return plandomain.Plan{}, ErrMissingFreePlan
		}
		return plandomain.Plan{}, err
	}
	return plan, nil
}

// countOwned counts the owner's units of a kind across every tenant the owner
// owns. The count is exact and unpaginated; multi-tenant owners share one
// quota pool.
func (s *ServiceImpl) countOwned(ctx context.Context, ownerID snowflake.ID, kind plandomain.ResourceKind) (int64, error) {
	var count int64

	if kind == plandomain.ResourceTenant {
		err := s.db.WithContext(ctx).
			Table("tenants").
			Where("owner_id = ?", ownerID).
			Count(&count).Error
		return count, err
	}

	err := s.db.WithContext(ctx).
		Table("redeemable_units").
		Joins("JOIN tenants ON tenants.id = redeemable_units.tenant_id").
		Where("tenants.owner_id = ? AND redeemable_units.kind = ?", ownerID, kind).
		Count(&count).Error
	return count, err
}
