package main

import (
	"log"
	"os"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"streampoints-engine/pkg/config"
	"streampoints-engine/pkg/db"
	"streampoints-engine/pkg/hashistack/secretmanager"
	"streampoints-engine/pkg/health"
	"streampoints-engine/pkg/logger"
	"streampoints-engine/pkg/profiling"
	"streampoints-engine/pkg/redis"
	"streampoints-engine/pkg/server"
	"streampoints-engine/pkg/task"
	"streampoints-engine/services/leaderboard"
	"streampoints-engine/services/points"
	"streampoints-engine/services/webhook"
)

func main() {
	opts := []fx.Option{}
	if os.Getenv("VAULT_ADDR") != "" {
		opts = append(opts, secretmanager.Module)
	}

	opts = append(opts,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		profiling.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		fx.Invoke(registerDBTelemetry),
		points.Module,
		webhook.Module,
		leaderboard.Module,
		leaderboard.TaskModule,
		health.Module,
		server.ProvideHTTPServer,
		fxLogger,
	)

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func registerDBTelemetry(gdb *gorm.DB, cfg *config.Config) error {
	if err := db.Otel(gdb); err != nil {
		return err
	}
	if cfg.AppEnv == "production" {
		return db.Metric(gdb, cfg.Database.DBNAME)
	}
	return nil
}
