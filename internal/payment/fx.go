package payment

import (
	"go.uber.org/fx"

	"github.com/shareprep/shareprep/internal/payment/service"
	"github.com/shareprep/shareprep/internal/payment/stripe"
)

var Module = fx.Module("payment.service",
	fx.Provide(stripe.NewAdapter),
	fx.Provide(service.NewService),
)
