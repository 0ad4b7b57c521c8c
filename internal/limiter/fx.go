package limiter

import "go.uber.org/fx"

var Module = fx.Module("limiter",
	fx.Provide(NewLimiter),
)
