// Package api serves departure boards and schedule queries over HTTP for
// screens that poll instead of subscribing to NATS.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bus-signage/internal/board"
	"bus-signage/internal/clock"
	mmetrics "bus-signage/internal/metrics"
	"bus-signage/internal/schedule"
)

// BoardSource provides the most recent board.
type BoardSource interface {
	Latest() *board.Board
}

type Options struct {
	Station      string
	DefaultLimit int
	RateLimitRPS int
	CORSOrigins  []string
}

type Server struct {
	engine  *schedule.Engine
	boards  BoardSource
	clock   clock.Clock
	opts    Options
	limiter *RateLimiter
	logger  *slog.Logger
	router  chi.Router
}

// NewServer builds the router. boards and metrics may be nil.
func NewServer(engine *schedule.Engine, boards BoardSource, clk clock.Clock, opts Options, metrics *mmetrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{
		engine:  engine,
		boards:  boards,
		clock:   clk,
		opts:    opts,
		limiter: NewRateLimiter(opts.RateLimitRPS, clk),
		logger:  logger.With(slog.String("component", "api")),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger, metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(s.limiter.Handler)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/station", s.station)
		r.Get("/signage", s.signage)
		r.Get("/platforms", s.platforms)
		r.Get("/platforms/{platform}/departures", s.departures)
		r.Get("/board", s.board)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Close releases background resources held by the server.
func (s *Server) Close() { s.limiter.Stop() }

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.IsLoaded() {
		http.Error(w, "dataset not loaded", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Loaded         bool      `json:"loaded"`
	Station        string    `json:"station,omitempty"`
	StationName    string    `json:"station_name"`
	Now            time.Time `json:"now"`
	ServiceDay     string    `json:"service_day,omitempty"`
	Elapsed        int       `json:"elapsed_seconds,omitempty"`
	DateChangeHour int       `json:"date_change_hour"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	now := s.clock.Now()
	resp := statusResponse{
		Loaded:      s.engine.IsLoaded(),
		Station:     s.opts.Station,
		StationName: s.engine.StationName(),
		Now:         now,
	}
	if sd, ok := s.engine.ServiceDay(now); ok {
		resp.ServiceDay = sd.Date
		resp.Elapsed = sd.Elapsed
	}
	resp.DateChangeHour = s.engine.SignageData().ChangeHour()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) station(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    s.engine.StationName(),
		"name_en": s.engine.StationNameEn(),
	})
}

func (s *Server) signage(w http.ResponseWriter, _ *http.Request) {
	ds := s.engine.SignageData()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) platforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"platforms": s.engine.Platforms()})
}

type departuresResponse struct {
	Platform   string                      `json:"platform"`
	Now        time.Time                   `json:"now"`
	ServiceDay string                      `json:"service_day,omitempty"`
	Departures []schedule.DisplayDeparture `json:"departures"`
}

// departures serves GET /api/platforms/{platform}/departures. limit falls back
// to the configured default when absent or invalid; offset shifts the query
// instant by whole minutes and is ignored when not numeric.
func (s *Server) departures(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	q := r.URL.Query()

	limit := s.opts.DefaultLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	now := s.clock.Now().Add(clock.ParseOffsetMinutes(q.Get("offset")))

	resp := departuresResponse{
		Platform:   platform,
		Now:        now,
		Departures: s.engine.UpcomingDepartures(now, platform, limit),
	}
	if sd, ok := s.engine.ServiceDay(now); ok {
		resp.ServiceDay = sd.Date
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) board(w http.ResponseWriter, _ *http.Request) {
	if s.boards == nil {
		writeError(w, http.StatusServiceUnavailable, "board not available")
		return
	}
	b := s.boards.Latest()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "board not available")
		return
	}
	writeJSON(w, http.StatusOK, b)
}
