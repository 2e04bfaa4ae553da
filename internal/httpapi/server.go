package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/alert"
	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/export"
	"github.com/covwatch/covwatch/internal/tracker"
)

// readTimeout bounds read-only queries (latest/trend/check/metrics) so a
// scrape never waits on slow ingestion.
const readTimeout = 5 * time.Second

const expositionContentType = "text/plain; version=0.0.4; charset=utf-8"

type Server struct {
	Logger    *zap.Logger
	Tracker   *tracker.Tracker
	Exporter  *export.Exporter
	TrendDays int // default window for trend queries
}

func NewServer(l *zap.Logger, tr *tracker.Tracker, ex *export.Exporter, trendDays int) *Server {
	if trendDays <= 0 {
		trendDays = 7
	}
	return &Server{Logger: l, Tracker: tr, Exporter: ex, TrendDays: trendDays}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/api/coverage", s.handleRecordSample)
	r.Get("/api/coverage/latest", s.handleLatest)
	r.Get("/api/coverage/trend", s.handleTrend)
	r.Get("/api/alerts/check", s.handleCheckAlerts)
	r.Post("/api/alerts/reset", s.handleResetAlerts)
	r.Get("/metrics", s.handleMetrics)

	return r
}

func scopeFromQuery(r *http.Request) domain.Scope {
	q := r.URL.Query()
	return domain.NewScope(q.Get("test_suite"), q.Get("branch"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRecordSample(w http.ResponseWriter, r *http.Request) {
	var in domain.SampleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	sample, events, err := s.Tracker.Record(r.Context(), in)
	if err != nil {
		switch {
		case domain.IsValidation(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case domain.IsStorage(err):
			// retryable for the caller; nothing was recorded
			s.Logger.Error("record_storage_error", zap.Error(err))
			http.Error(w, "storage unavailable, retry later", http.StatusServiceUnavailable)
		default:
			s.Logger.Error("record_error", zap.Error(err))
			http.Error(w, "could not record sample", http.StatusInternalServerError)
		}
		return
	}

	if events == nil {
		events = []alert.Event{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sample": sample,
		"alerts": events,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	sample, err := s.Tracker.Latest(ctx, scopeFromQuery(r))
	if err != nil {
		s.Logger.Error("latest_error", zap.Error(err))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if sample == nil {
		// never recorded: absent, not an error
		http.Error(w, "no samples for scope", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	days := s.TrendDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = n
	}

	rep, err := s.Tracker.Trend(ctx, scopeFromQuery(r), days)
	if err != nil {
		s.Logger.Error("trend_error", zap.Error(err))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if rep.Samples == nil {
		rep.Samples = []domain.CoverageSample{}
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleCheckAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	q := r.URL.Query()
	threshold, err := strconv.ParseFloat(q.Get("threshold"), 64)
	if err != nil || threshold <= 0 || threshold > 100 {
		http.Error(w, "threshold must be a percentage in (0,100]", http.StatusBadRequest)
		return
	}

	var scope *domain.Scope
	if q.Get("test_suite") != "" || q.Get("branch") != "" {
		sc := scopeFromQuery(r)
		scope = &sc
	}

	events, err := s.Tracker.CheckAlerts(ctx, scope, threshold)
	if err != nil {
		s.Logger.Error("check_alerts_error", zap.Error(err))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []alert.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": events})
}

func (s *Server) handleResetAlerts(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromQuery(r)
	if err := s.Tracker.ResetAlerts(r.Context(), scope); err != nil {
		s.Logger.Error("reset_alerts_error", zap.Error(err))
		http.Error(w, "reset error", http.StatusInternalServerError)
		return
	}
	s.Logger.Info("alerts_reset", zap.String("scope", scope.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	w.Header().Set("Content-Type", expositionContentType)
	if err := s.Exporter.Render(ctx, w); err != nil {
		s.Logger.Error("metrics_render_error", zap.Error(err))
		// headers are already out; the scraper sees a truncated body
	}
}
