package statement

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/soarecon/internal/statement/repository"
)

var Module = fx.Module("statement.repository",
	fx.Provide(repository.Provide),
)
