package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/parley/internal/adapters/http"
	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/app/orch"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/persona"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var gen core.Generator
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		gen = persona.NewOpenAI(key, cfg.OpenAIModel)
		log.Info().Str("module", "main").Str("model", cfg.OpenAIModel).Msg("using OpenAI generator")
	} else {
		gen = persona.NewScripted()
		log.Info().Str("module", "main").Msg("no OPENAI_API_KEY, using scripted generator")
	}

	profiles, err := persona.OpenSQLite(cfg.ProfileDB)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.ProfileDB).Msg("failed to open profile store")
	}
	defer profiles.Close()

	turnCfg := core.TurnConfig{
		Timeout:     cfg.TurnTimeout,
		GenTimeout:  cfg.GenTimeout,
		Window:      cfg.LogWindow,
		Suggestions: cfg.Suggestions,
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(ctx, gen, turnCfg),
		Catalog:  persona.NewCatalog(),
		Profiles: profiles,
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Parley server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
