package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mystictxt/internal/audit"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/smallbiznis/mystictxt/internal/chat"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/events"
	"github.com/smallbiznis/mystictxt/internal/migration"
	"github.com/smallbiznis/mystictxt/internal/observability"
	"github.com/smallbiznis/mystictxt/internal/ratelimit"
	"github.com/smallbiznis/mystictxt/internal/scheduler"
	"github.com/smallbiznis/mystictxt/internal/seed"
	"github.com/smallbiznis/mystictxt/internal/server"
	"github.com/smallbiznis/mystictxt/internal/wallet"
	"github.com/smallbiznis/mystictxt/pkg/db"
	"go.uber.org/fx"
)

func main() {
	mint := flag.String("mint-token", "", "print a development bearer token for role:subject and exit")
	ttl := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a minted token")
	flag.Parse()

	if *mint != "" {
		if err := mintToken(*mint, *ttl); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		audit.Module,
		authorization.Module,
		auth.Module,
		events.Module,
		ratelimit.Module,
		wallet.Module,
		chat.Module,
		seed.Module,

		scheduler.Module,
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

// mintToken signs a token with the configured secret; refused in production.
func mintToken(arg string, ttl time.Duration) error {
	cfg := config.Load()
	if cfg.IsProduction() {
		return fmt.Errorf("refusing to mint tokens in production")
	}

	role, subject, ok := strings.Cut(arg, ":")
	if !ok {
		return fmt.Errorf("expected role:subject, got %q", arg)
	}

	verifier, err := auth.NewTokenVerifier(cfg, clock.SystemClock{})
	if err != nil {
		return err
	}
	token, err := verifier.Issue(auth.Actor{ID: strings.TrimSpace(subject), Role: auth.Role(strings.TrimSpace(role))}, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
