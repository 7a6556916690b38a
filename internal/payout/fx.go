package payout

import (
	"github.com/smallbiznis/adbilling/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(service.NewService),
)
