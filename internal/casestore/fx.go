package casestore

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/soarecon/internal/casestore/repository"
)

var Module = fx.Module("casestore.repository",
	fx.Provide(repository.Provide),
)
