package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mystictxt/internal/audit"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/smallbiznis/mystictxt/internal/chat"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/events"
	"github.com/smallbiznis/mystictxt/internal/observability"
	"github.com/smallbiznis/mystictxt/internal/ratelimit"
	"github.com/smallbiznis/mystictxt/internal/scheduler"
	"github.com/smallbiznis/mystictxt/internal/wallet"
	"github.com/smallbiznis/mystictxt/pkg/db"
	"go.uber.org/fx"
)

// The sweeper runs the scheduler jobs without an HTTP surface. Replicas
// coordinate through the redis lock when rate limiting is configured.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		audit.Module,
		authorization.Module,
		events.Module,
		ratelimit.Module,
		wallet.Module,
		chat.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
