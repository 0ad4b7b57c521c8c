package reset

import "go.uber.org/fx"

var Module = fx.Module("reset",
	fx.Provide(NewProtocol),
)
