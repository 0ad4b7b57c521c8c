package audit

import (
	"go.uber.org/fx"

	"github.com/shareprep/shareprep/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(service.NewService),
)
