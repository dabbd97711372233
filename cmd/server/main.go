package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/a2a"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/app"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/config"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("RESALE_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start advisor")
	}
	defer a.Close()

	go func() {
		if err := a.Searcher.Warm(ctx); err != nil {
			log.Warn().Err(err).Msg("site index not warmed, it will be built on first search")
		}
	}()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           a2a.NewRouter(a.Advisor, a.Sessions, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("port", port).Msg("HDB Resale Guide Agent starting")
	log.Info().Msgf("Agent card available at: http://localhost:%s/.well-known/agent.json", port)
	log.Info().Msgf("A2A endpoint available at: http://localhost:%s/a2a/resale", port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
