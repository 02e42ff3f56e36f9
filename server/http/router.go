package serverhttp

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"drug-matcher/internal/config"
	matchHnd "drug-matcher/internal/matching/handler"
	"drug-matcher/internal/matching/service"
	"drug-matcher/internal/middleware"
	"drug-matcher/internal/store"
	"drug-matcher/server/http/handlers"
)

// NewRouter wires the HTTP API. db may be nil, then sessions are not persisted.
func NewRouter(cfg config.Config, lx *service.Lexicon, db *sql.DB, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// order matters: recover -> requestID -> logging -> cors -> limit
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))
	r.Use(middleware.LimitBytes(int64(cfg.MaxUploadMB) << 20))

	var st *store.Store
	if db != nil {
		st = store.New(db)
	}

	r.Get("/health", handlers.Health(db))
	r.Post("/match", matchHnd.Match(cfg, lx, st, logger))
	r.Get("/sessions/{id}", matchHnd.Session(st, logger))

	return r
}
