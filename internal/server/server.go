// Package server exposes the operator HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sjsage522/runewatcher/internal/arbitrage"
	"sjsage522/runewatcher/internal/export"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/internal/store"
	"sjsage522/runewatcher/logger"
	watcherrors "sjsage522/runewatcher/pkg/errors"
)

// Refresher runs collection passes and accepts page results
type Refresher interface {
	Refresh(ctx context.Context) models.RefreshResult
	HandlePagePrices(ctx context.Context, req models.PagePricesRequest) (models.Response, error)
}

// Server serves the price table, the ranking and the settings
type Server struct {
	store  store.Store
	worker Refresher
	logger *logger.Logger
	now    func() time.Time
	router chi.Router
}

// New builds the router
func New(st store.Store, w Refresher) *Server {
	s := &Server{
		store:  st,
		worker: w,
		logger: logger.ForServer(),
		now:    time.Now,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/prices", s.handlePrices)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/page-prices", s.handlePagePrices)
		r.Get("/opportunities", s.handleOpportunities)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/export", s.handleExport)
		r.Get("/export.xlsx", s.handleExportXLSX)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	table, err := s.store.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Prices: table})
}

// handleRefresh answers 502 when no marketplace delivered; the outcomes
// still carry each failure reason and the stored prices stay readable
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result := s.worker.Refresh(r.Context())
	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (s *Server) handlePagePrices(w http.ResponseWriter, r *http.Request) {
	var req models.PagePricesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Response{Success: false, Error: "invalid request body"})
		return
	}

	resp, err := s.worker.HandlePagePrices(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if watcherrors.Is(err, watcherrors.ErrorTypeValidation) {
			status = http.StatusBadRequest
		}
		if resp.Error == "" {
			resp.Error = err.Error()
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type opportunitiesResponse struct {
	Opportunities []arbitrage.Opportunity `json:"opportunities"`
	Summary       arbitrage.Summary       `json:"summary"`
	SortBy        models.SortKey          `json:"sortBy"`
}

func (s *Server) ranking(ctx context.Context) (models.PriceTable, []arbitrage.Opportunity, models.Settings, error) {
	table, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, nil, models.Settings{}, err
	}
	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		return nil, nil, models.Settings{}, err
	}
	settings = settings.Normalize()
	return table, arbitrage.Rank(table, arbitrage.FilterFromSettings(settings), settings.SortBy), settings, nil
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	table, opps, settings, err := s.ranking(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	sortBy := settings.SortBy
	if q := r.URL.Query().Get("sort"); q != "" {
		sortBy = models.ParseSortKey(q)
		opps = arbitrage.Rank(table, arbitrage.FilterFromSettings(settings), sortBy)
	}
	if !settings.HighlightBest {
		for i := range opps {
			opps[i].Best = false
		}
	}
	if opps == nil {
		opps = []arbitrage.Opportunity{}
	}

	writeJSON(w, http.StatusOK, opportunitiesResponse{
		Opportunities: opps,
		Summary:       arbitrage.Summarize(opps),
		SortBy:        sortBy,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.LoadSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings.Normalize())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.LoadSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// fields absent from the body keep their stored values
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err))
		return
	}
	settings = settings.Normalize()
	if err := s.store.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info().
		Int("refresh_minutes", settings.RefreshIntervalMinutes).
		Float64("threshold", settings.NotificationThreshold).
		Msg("Settings updated")
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	table, opps, _, err := s.ranking(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	doc := export.Build(table, opps, s.now())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(doc.Timestamp)))
	if err := export.Encode(w, doc); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write export")
	}
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	table, opps, _, err := s.ranking(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	doc := export.Build(table, opps, s.now())

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.XLSXFileName(doc)))
	if err := export.WriteXLSX(w, table, opps); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write workbook")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
