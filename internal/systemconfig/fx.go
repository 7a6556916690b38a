package systemconfig

import (
	"github.com/smallbiznis/adbilling/internal/systemconfig/service"
	"go.uber.org/fx"
)

var Module = fx.Module("systemconfig.service",
	fx.Provide(service.NewService),
)
