package quota

import (
	"github.com/FESP32/clientela-pro-sub001/internal/cache"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(cache.NewPlanResolverCache),
	fx.Provide(NewService),
)
