// Package api is the HTTP surface over the store: price series, indicators,
// admin maintenance endpoints, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FinSite/internal/logger"
	"FinSite/internal/model"
	"FinSite/internal/recorder"
	"FinSite/internal/store"
)

const (
	maxQueryLimit  = 5000
	adminPrefix    = "/api/admin/"
	defaultRunsMax = 20
)

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Runner starts reconciliation runs on demand.
type Runner interface {
	Today() time.Time
	ReconcileTickers(ctx context.Context, tickers []string, start, end time.Time) (*model.RunSummary, error)
}

// Options configures the server.
type Options struct {
	Addr         string
	APIKey       string
	AllowOrigins []string
	Lookback     int
}

type Server struct {
	store      store.Store
	runner     Runner
	recorder   recorder.Recorder
	logger     *logger.Logger
	httpServer *http.Server
	handler    http.Handler
	apiKey     string
	origins    []string
	lookback   int
}

// NewServer wires routes. runner may be nil, which disables POST reconcile;
// gatherer may be nil, which disables /metrics.
func NewServer(opts Options, st store.Store, runner Runner, rec recorder.Recorder, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if log == nil {
		log = logger.NewSilent()
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 7
	}
	s := &Server{
		store:    st,
		runner:   runner,
		recorder: rec,
		logger:   log,
		apiKey:   opts.APIKey,
		origins:  opts.AllowOrigins,
		lookback: opts.Lookback,
	}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /health/db", s.handleHealthDB)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Public
	mux.HandleFunc("GET /api/stocks/{ticker}/series", s.handleSeries)
	mux.HandleFunc("GET /api/stocks/{ticker}/indicators", s.handleIndicators)
	mux.HandleFunc("GET /api/stocks/{ticker}/price", s.handlePrice)

	// Admin
	mux.HandleFunc("GET /api/admin/companies", s.handleListCompanies)
	mux.HandleFunc("POST /api/admin/companies", s.handleCreateCompany)
	mux.HandleFunc("POST /api/admin/companies/bulk", s.handleBulkCompanies)
	mux.HandleFunc("DELETE /api/admin/companies/{ticker}", s.handleDeleteCompany)
	mux.HandleFunc("GET /api/admin/stocks/{ticker}/last_price_date", s.handleLastPriceDate)
	mux.HandleFunc("POST /api/admin/prices/bulk", s.handleBulkPrices)
	mux.HandleFunc("DELETE /api/admin/prices", s.handleDeletePrices)
	mux.HandleFunc("POST /api/admin/reconcile", s.handleReconcile)
	mux.HandleFunc("GET /api/admin/runs", s.handleRuns)

	s.handler = s.logMiddleware(s.corsMiddleware(s.authMiddleware(mux)))
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
	return s
}

// Handler exposes the routed handler chain.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Bool("admin_auth", s.apiKey != "").Msg("api server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || !strings.HasPrefix(r.URL.Path, adminPrefix) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.origins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		ev := s.logger.Debug()
		if sw.status >= 500 {
			ev = s.logger.Error()
		}
		ev.Str("method", r.Method).Str("path", r.URL.Path).Int("status", sw.status).
			Dur("elapsed", time.Since(start)).Msg("request")
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func parseLimit(r *http.Request, key string, defaultLimit int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
