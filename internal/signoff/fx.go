package signoff

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/soarecon/internal/signoff/repository"
	"github.com/smallbiznis/soarecon/internal/signoff/service"
)

var Module = fx.Module("signoff.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
