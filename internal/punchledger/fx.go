package punchledger

import (
	"github.com/FESP32/clientela-pro-sub001/internal/punchledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("punchledger.service",
	fx.Provide(service.NewService),
)
