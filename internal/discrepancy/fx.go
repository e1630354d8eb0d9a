package discrepancy

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/discrepancy/detector"
	"github.com/smallbiznis/soarecon/internal/discrepancy/repository"
)

var Module = fx.Module("discrepancy",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg *config.MatchingConfigHolder) *detector.Detector {
		return detector.New(cfg)
	}),
)
