package unit

import (
	"github.com/FESP32/clientela-pro-sub001/internal/unit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("unit.service",
	fx.Provide(service.NewService),
)
