package reward

import (
	"github.com/shareprep/shareprep/internal/reward/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reward.service",
	fx.Provide(service.NewService),
)
