package seed

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	tenantdomain "github.com/FESP32/clientela-pro-sub001/internal/tenant/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	demoTenantName = "Demo Coffee"
	demoTenantSlug = "demo-coffee"
	demoOwnerID    = snowflake.ID(1)
)

// EnsureDefaultPlans seeds the free and pro plans for startup bootstrap. The
// free plan is mandatory: quota checks treat its absence as a fatal
// misconfiguration.
func EnsureDefaultPlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plans := []plandomain.Plan{
			{
				Code:                plandomain.PlanCodeFree,
				Name:                "Free",
				MaxStampCards:       3,
				MaxGifts:            3,
				MaxReferralPrograms: 1,
				MaxSurveys:          1,
				MaxTenants:          1,
			},
			{
				Code:                "pro",
				Name:                "Pro",
				MaxStampCards:       50,
				MaxGifts:            50,
				MaxReferralPrograms: 10,
				MaxSurveys:          10,
				MaxTenants:          5,
			},
		}
		for _, plan := range plans {
			if err := ensurePlanTx(ctx, tx, node, plan); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDemoTenant seeds a demo business for local development.
func EnsureDemoTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant tenantdomain.Tenant
		err := tx.WithContext(ctx).Where("slug = ?", demoTenantSlug).First(&tenant).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		tenant = tenantdomain.Tenant{
			ID:        node.Generate(),
			OwnerID:   demoOwnerID,
			Name:      demoTenantName,
			Slug:      demoTenantSlug,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&tenant).Error; err != nil {
			return err
		}

		member := tenantdomain.TenantMember{
			ID:        node.Generate(),
			TenantID:  tenant.ID,
			UserID:    demoOwnerID,
			Role:      tenantdomain.RoleOwner,
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
			return err
		}

		pointer := tenantdomain.CurrentTenant{
			UserID:    demoOwnerID,
			TenantID:  tenant.ID,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&pointer).Error
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, plan plandomain.Plan) error {
	var existing plandomain.Plan
	err := tx.WithContext(ctx).Where("code = ?", plan.Code).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	plan.ID = node.Generate()
	plan.IsActive = true
	plan.CreatedAt = time.Now().UTC()
	return tx.WithContext(ctx).Create(&plan).Error
}
