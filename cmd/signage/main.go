package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bus-signage/internal/api"
	"bus-signage/internal/board"
	"bus-signage/internal/clock"
	"bus-signage/internal/config"
	"bus-signage/internal/db"
	"bus-signage/internal/metrics"
	"bus-signage/internal/publisher"
	"bus-signage/internal/schedule"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.BoardRefreshInterval, cfg.ClockInterval)
		metricsSrv = mcol.Serve(cfg.MetricsAddr, logger)
	}
	observer := wrapScheduleMetrics(mcol)

	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		fatal(logger, "dataset source error", err)
	}
	defer closeSrc()

	store := schedule.NewStore(logger, observer)
	if _, err := store.Load(ctx, src); err != nil {
		var lerr *schedule.LoadError
		if errors.As(err, &lerr) {
			fatal(logger, "initial dataset load failed", err)
		}
		logger.Warn("dataset incomplete, serving empty boards", slog.Any("error", err))
	}
	engine := schedule.NewEngine(store, logger, observer)

	clk := clock.New(cfg.Location, cfg.TimeOffset)
	if cfg.TimeOffset != 0 {
		logger.Warn("board clock offset active", slog.Duration("offset", cfg.TimeOffset))
	}

	// Optional NATS publisher
	var pub board.Publisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, stationToken(cfg), logger, wrapPublisherMetrics(mcol))
		if err != nil {
			fatal(logger, "nats error", err)
		}
		defer np.Close()
		pub = np
	}

	var platforms []config.PlatformConfig
	if cfg.Board != nil {
		platforms = cfg.Board.Platforms
	}
	mgr := board.NewManager(engine, store, src, pub, clk, board.Options{
		Station:         cfg.Station,
		Platforms:       platforms,
		DefaultLimit:    cfg.DepartureLimit,
		RefreshInterval: cfg.BoardRefreshInterval,
		ClockInterval:   cfg.ClockInterval,
		ReloadInterval:  cfg.DatasetReloadInterval,
	}, mcol, logger)
	mgr.StartRefresher(ctx)

	apiSrv := api.NewServer(engine, mgr, clk, api.Options{
		Station:      cfg.Station,
		DefaultLimit: cfg.DepartureLimit,
		RateLimitRPS: cfg.RateLimitRPS,
		CORSOrigins:  cfg.CORSOrigins,
	}, mcol, logger)
	defer apiSrv.Close()
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: apiSrv, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", slog.Any("error", err))
			cancel()
		}
	}()
	logger.Info("signage started",
		slog.String("listen", cfg.ListenAddr),
		slog.String("source", src.String()),
		slog.String("station", cfg.Station),
		slog.Bool("nats", pub != nil))

	// Block until context cancelled
	<-ctx.Done()

	// Allow graceful shutdown
	shutdownCtx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	mgr.Stop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info("shutdown complete")
}

// openSource picks the dataset source from DATASET_SOURCE: a database DSN,
// an http(s) URL, or a local file path.
func openSource(ctx context.Context, cfg *config.Config) (schedule.Source, func(), error) {
	raw := cfg.DatasetSource
	switch {
	case db.IsDSN(raw):
		if cfg.Station == "" {
			return nil, nil, errors.New("STATION must be set when DATASET_SOURCE is a database")
		}
		conn, dialect, err := db.Open(raw)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return db.Source{DB: conn, Dialect: dialect, Station: cfg.Station}, func() { conn.Close() }, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return schedule.HTTPSource{URL: raw, Client: &http.Client{Timeout: 30 * time.Second}}, func() {}, nil
	default:
		return schedule.FileSource{Path: strings.TrimPrefix(raw, "file://")}, func() {}, nil
	}
}

func stationToken(cfg *config.Config) string {
	if cfg.Station != "" {
		return cfg.Station
	}
	return "default"
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.Any("error", err))
	os.Exit(1)
}

// wrapScheduleMetrics adapts our Collector to schedule.Observer.
func wrapScheduleMetrics(c *metrics.Collector) schedule.Observer {
	if c == nil {
		return schedule.NopObserver{}
	}
	return &scheduleMetrics{c: c}
}

type scheduleMetrics struct{ c *metrics.Collector }

func (s *scheduleMetrics) DatasetLoaded(result string) {
	s.c.DatasetLoads.WithLabelValues(result).Inc()
	switch result {
	case schedule.LoadOK, schedule.LoadMissing:
		s.c.DatasetLoaded.Set(1)
	}
}
func (s *scheduleMetrics) DayCacheBuilt(string, int) { s.c.DayCacheBuilds.Inc() }
func (s *scheduleMetrics) QueryServed(n int) {
	s.c.Queries.Inc()
	s.c.DeparturesReturned.Observe(float64(n))
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
