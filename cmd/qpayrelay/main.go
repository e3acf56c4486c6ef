package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qpayrelay/internal/cache"
	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/gateway"
	"github.com/smallbiznis/qpayrelay/internal/migration"
	"github.com/smallbiznis/qpayrelay/internal/notification"
	"github.com/smallbiznis/qpayrelay/internal/observability"
	"github.com/smallbiznis/qpayrelay/internal/payment"
	"github.com/smallbiznis/qpayrelay/internal/promo"
	"github.com/smallbiznis/qpayrelay/internal/providers"
	"github.com/smallbiznis/qpayrelay/internal/ratelimit"
	"github.com/smallbiznis/qpayrelay/internal/server"
	"github.com/smallbiznis/qpayrelay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		fx.Invoke(validateConfig),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Functional Domains
		gateway.Module,
		promo.Module,
		payment.Module,
		providers.Module,
		notification.Module,

		server.Module,
	)
	app.Run()
}

// validateConfig refuses to start while a required environment variable is missing.
func validateConfig(cfg config.Config) error {
	return cfg.Validate()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
