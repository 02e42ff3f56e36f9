package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drug-matcher/internal/config"
	"drug-matcher/internal/matching/service"
	"drug-matcher/internal/store"
	serverhttp "drug-matcher/server/http"
)

func main() {
	cfg, err := config.Load()
	logger := config.SetupLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	lx, err := service.LoadLexicon(cfg.LexiconFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.LexiconFile).Msg("lexicon")
	}
	// a bad matching configuration stops startup before any request is served
	if _, err := service.NewEngine(cfg.Matching, lx, logger); err != nil {
		logger.Fatal().Err(err).Msg("matching config")
	}

	var db *sql.DB
	if cfg.DBPath != "" {
		db, err = store.Open(cfg.DBPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
		}
		defer db.Close()
		if err := store.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	} else {
		logger.Warn().Msg("persistence disabled, sessions will not be stored")
	}

	r := serverhttp.NewRouter(cfg, lx, db, logger)

	srv := &http.Server{Addr: cfg.Addr(), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	logger.Info().
		Str("addr", cfg.Addr()).
		Float64("threshold", cfg.Matching.Threshold).
		Str("weighting", cfg.Matching.Weighting).
		Msg("server starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Info().Msg("bye")
}
