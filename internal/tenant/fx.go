package tenant

import (
	"github.com/FESP32/clientela-pro-sub001/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(service.NewService),
)
