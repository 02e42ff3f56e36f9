package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"drug-matcher/internal/config"
	"drug-matcher/internal/fileio"
	"drug-matcher/internal/matching/model"
	"drug-matcher/internal/matching/service"
	"drug-matcher/internal/middleware"
	"drug-matcher/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MatchResponse is the JSON body of POST /match.
type MatchResponse struct {
	*service.Report
	MapA Mapping `json:"mapA"`
	MapB Mapping `json:"mapB"`
}

// SessionResponse is the JSON body of GET /sessions/{id}.
type SessionResponse struct {
	Session   *model.SessionMetadata `json:"session"`
	Matched   int                    `json:"matched"`
	Unmatched int                    `json:"unmatched"`
	Results   []store.ResultRow      `json:"results,omitempty"`
}

// Match returns the POST /match handler. fileA is the reference catalog and
// fileB the candidate catalog. st may be nil, then nothing is persisted.
func Match(cfg config.Config, lx *service.Lexicon, st *store.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := logger.With().Str("rid", middleware.GetRequestID(r)).Logger()

		defer r.Body.Close()
		if err := r.ParseMultipartForm(int64(cfg.MaxUploadMB) << 20); err != nil {
			http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}

		mcfg, err := matchingConfig(cfg.Matching, r.FormValue)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		engine, err := service.NewEngine(mcfg, lx, log)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ma := mappingFrom(r.FormValue, "a_")
		mb := mappingFrom(r.FormValue, "b_")

		refs, refName, err := readCatalog(r, "fileA", ma)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cands, candName, err := readCatalog(r, "fileB", mb)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		log.Debug().
			Int("references", len(refs)).
			Int("candidates", len(cands)).
			Str("a_generic_key", ma.GenericKey).
			Str("b_generic_key", mb.GenericKey).
			Msg("catalogs mapped")

		var p service.Persister = service.NopPersister{}
		if st != nil {
			p = st
		}
		rep, err := engine.Run(r.Context(), service.Catalogs{
			ReferenceName: refName,
			CandidateName: candName,
			References:    refs,
			Candidates:    cands,
		}, p)
		if err != nil {
			log.Error().Err(err).Msg("match run")
			http.Error(w, "match failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Session-ID", rep.Session.ID)
		if strings.EqualFold(r.URL.Query().Get("format"), "xlsx") {
			w.Header().Set("Content-Type", xlsxContentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="match-%s.xlsx"`, rep.Session.ID))
			if err := fileio.WriteReport(w, rep); err != nil {
				log.Error().Err(err).Msg("write report")
			}
		} else {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(MatchResponse{Report: rep, MapA: ma, MapB: mb}); err != nil {
				log.Error().Err(err).Msg("write json")
				return
			}
		}

		log.Info().
			Str("session", rep.Session.ID).
			Int("references", len(refs)).
			Int("candidates", len(cands)).
			Int("matched", rep.Session.Counters.Matched).
			Int("unmatched", rep.Session.Counters.Unmatched).
			Int("skipped", len(rep.Skipped)).
			Dur("elapsed", time.Since(start)).
			Msg("match done")
	}
}

// Session returns the GET /sessions/{id} handler. ?status=MATCHED|UNMATCHED|all
// adds the persisted result rows.
func Session(st *store.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		id := chi.URLParam(r, "id")
		meta, err := st.GetSession(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error().Err(err).Str("session", id).Msg("load session")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		resp := SessionResponse{Session: meta}
		if resp.Matched, resp.Unmatched, err = st.CountResults(r.Context(), id); err != nil {
			logger.Error().Err(err).Str("session", id).Msg("count results")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if status := strings.ToUpper(r.URL.Query().Get("status")); status != "" {
			switch status {
			case "ALL":
				status = ""
			case store.StatusMatched, store.StatusUnmatched:
			default:
				http.Error(w, "unknown status "+status, http.StatusBadRequest)
				return
			}
			if resp.Results, err = st.ListResults(r.Context(), id, status); err != nil {
				logger.Error().Err(err).Str("session", id).Msg("list results")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error().Err(err).Msg("write json")
		}
	}
}

func readCatalog(r *http.Request, field string, m Mapping) ([]model.DrugRecord, string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("missing %s: %w", field, err)
	}
	defer f.Close()

	rows, err := fileio.ReadAnyMaps(f, hdr.Filename, m.HeaderRow)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", field, err)
	}
	return toRecords(rows, m), hdr.Filename, nil
}

// matchingConfig applies per-request overrides on top of the server defaults.
// Parse problems come back as a *service.ConfigError; range checks are left
// to service.NewEngine.
func matchingConfig(base service.Config, form func(string) string) (service.Config, error) {
	cfg := base
	var problems []string
	num := func(dst *float64, field string) {
		v, err := parseFloatField(field, form(field), *dst)
		if err != nil {
			problems = append(problems, err.Error())
			return
		}
		*dst = v
	}
	num(&cfg.Threshold, "threshold")
	num(&cfg.PriceTolerancePct, "price_tolerance_pct")
	num(&cfg.MaxPriceRatio, "price_max_ratio")

	if v := form("weights"); v != "" {
		w, err := config.ParseWeights(v)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.Weights = w
		}
	}
	if v := form("breakpoints"); v != "" {
		bp, err := config.ParseBreakpoints(v)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.Breakpoints = bp
		}
	}
	if v := strings.TrimSpace(form("weighting")); v != "" {
		cfg.Weighting = v
	}

	if len(problems) > 0 {
		return base, &service.ConfigError{Problems: problems}
	}
	return cfg, nil
}
