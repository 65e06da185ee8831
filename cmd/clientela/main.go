package main

import (
	"github.com/FESP32/clientela-pro-sub001/internal/authorization"
	"github.com/FESP32/clientela-pro-sub001/internal/clock"
	"github.com/FESP32/clientela-pro-sub001/internal/config"
	"github.com/FESP32/clientela-pro-sub001/internal/events"
	"github.com/FESP32/clientela-pro-sub001/internal/intent"
	intentdomain "github.com/FESP32/clientela-pro-sub001/internal/intent/domain"
	"github.com/FESP32/clientela-pro-sub001/internal/migration"
	"github.com/FESP32/clientela-pro-sub001/internal/observability/logger"
	"github.com/FESP32/clientela-pro-sub001/internal/observability/metrics"
	"github.com/FESP32/clientela-pro-sub001/internal/punchledger"
	"github.com/FESP32/clientela-pro-sub001/internal/quota"
	"github.com/FESP32/clientela-pro-sub001/internal/seed"
	"github.com/FESP32/clientela-pro-sub001/internal/tenant"
	tenantdomain "github.com/FESP32/clientela-pro-sub001/internal/tenant/domain"
	"github.com/FESP32/clientela-pro-sub001/internal/unit"
	unitdomain "github.com/FESP32/clientela-pro-sub001/internal/unit/domain"
	"github.com/FESP32/clientela-pro-sub001/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Provide(metrics.Redemption),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if err := seed.EnsureDefaultPlans(conn); err != nil {
				return err
			}
			if !cfg.IsProduction() && cfg.SeedDemoTenant {
				return seed.EnsureDemoTenant(conn)
			}
			return nil
		}),
		events.Module,
		authorization.Module,
		quota.Module,
		punchledger.Module,
		unit.Module,
		intent.Module,
		tenant.Module,
		// The HTTP surface lives in a separate deployment; construct the
		// service graph eagerly so wiring errors fail startup.
		fx.Invoke(func(intentdomain.Service, tenantdomain.Service, unitdomain.Service) {}),
	)
	app.Run()
}
