// Command server runs the tawk realtime messaging hub: the REST API under
// API_BASE_PATH and the WebSocket endpoint at /ws, backed by SQLite.
//
// Configuration comes from the environment; a .env file in the working
// directory is loaded first when present. SIGINT and SIGTERM trigger a
// graceful shutdown that hangs up live sessions and flushes presence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-tawk-backend/internal/app"
	"github.com/tbourn/go-tawk-backend/internal/config"
	"github.com/tbourn/go-tawk-backend/internal/observability"
	"github.com/tbourn/go-tawk-backend/internal/repo"
	"github.com/tbourn/go-tawk-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(nil, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	// Nobody is connected yet; presence and ringing calls left by a crash are stale.
	if n, err := repo.ResetPresence(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to reset presence")
	} else if n > 0 {
		log.Info().Int64("users", n).Msg("reset stale presence")
	}
	if n, err := repo.EndRingingCalls(ctx, db, time.Now().UTC()); err != nil {
		log.Fatal().Err(err).Msg("failed to end stale calls")
	} else if n > 0 {
		log.Info().Int64("calls", n).Msg("ended stale calls")
	}

	log.Info().Str("version", version).Str("db", cfg.DBPath).Msg("starting")
	if err := app.New(cfg, db).Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}
