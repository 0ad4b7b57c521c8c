package content

import (
	"go.uber.org/fx"

	"github.com/shareprep/shareprep/internal/content/service"
)

var Module = fx.Module("content.service",
	fx.Provide(service.NewService),
)
