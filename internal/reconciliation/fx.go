package reconciliation

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/soarecon/internal/reconciliation/service"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(service.NewService),
)
