package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mystictxt/internal/audit"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/smallbiznis/mystictxt/internal/chat"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/events"
	"github.com/smallbiznis/mystictxt/internal/observability"
	"github.com/smallbiznis/mystictxt/internal/ratelimit"
	"github.com/smallbiznis/mystictxt/internal/server"
	"github.com/smallbiznis/mystictxt/internal/wallet"
	"github.com/smallbiznis/mystictxt/pkg/db"
	"go.uber.org/fx"
)

// The API process serves HTTP only; expiry is still applied lazily on every read.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		audit.Module,
		authorization.Module,
		auth.Module,
		events.Module,
		ratelimit.Module,
		wallet.Module,
		chat.Module,

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
