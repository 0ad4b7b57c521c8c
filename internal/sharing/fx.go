package sharing

import "go.uber.org/fx"

var Module = fx.Module("sharing",
	fx.Provide(NewOrchestrator),
)
