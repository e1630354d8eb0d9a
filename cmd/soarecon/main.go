package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/soarecon/internal/audit"
	"github.com/smallbiznis/soarecon/internal/casestore"
	"github.com/smallbiznis/soarecon/internal/clock"
	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/discrepancy"
	"github.com/smallbiznis/soarecon/internal/lock"
	"github.com/smallbiznis/soarecon/internal/matching"
	"github.com/smallbiznis/soarecon/internal/migration"
	"github.com/smallbiznis/soarecon/internal/notification"
	"github.com/smallbiznis/soarecon/internal/observability"
	"github.com/smallbiznis/soarecon/internal/reconciliation"
	"github.com/smallbiznis/soarecon/internal/server"
	"github.com/smallbiznis/soarecon/internal/signoff"
	"github.com/smallbiznis/soarecon/internal/statement"
	"github.com/smallbiznis/soarecon/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		lock.Module,
		notification.Module,
		audit.Module,

		casestore.Module,
		statement.Module,
		matching.Module,
		discrepancy.Module,
		reconciliation.Module,
		signoff.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
