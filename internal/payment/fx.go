package payment

import (
	"github.com/smallbiznis/adbilling/internal/payment/repository"
	paymentservice "github.com/smallbiznis/adbilling/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
)
