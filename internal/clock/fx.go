package clock

import "go.uber.org/fx"

func newClock() Clock { return SystemClock{} }

var Module = fx.Module("clock",
	fx.Provide(newClock),
)
