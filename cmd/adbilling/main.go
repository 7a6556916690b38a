package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	"github.com/smallbiznis/adbilling/internal/migration"
	"github.com/smallbiznis/adbilling/internal/observability"
	"github.com/smallbiznis/adbilling/internal/server"
	"github.com/smallbiznis/adbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and every domain it serves
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
