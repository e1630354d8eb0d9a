package matching

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/matching/matcher"
	"github.com/smallbiznis/soarecon/internal/matching/repository"
)

var Module = fx.Module("matching",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg *config.MatchingConfigHolder, log *zap.Logger) *matcher.Matcher {
		return matcher.New(cfg, log)
	}),
)
