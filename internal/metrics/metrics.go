package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	DatasetLoaded prometheus.Gauge
	DatasetLoads  *prometheus.CounterVec // result label: ok|missing_data|error|unchanged

	DayCacheBuilds     prometheus.Counter
	Queries            prometheus.Counter
	DeparturesReturned prometheus.Histogram

	BoardRefreshes       prometheus.Counter
	BoardRefreshDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	HTTPRequests *prometheus.CounterVec // route, status

	RefreshInterval prometheus.Gauge // seconds
	ClockInterval   prometheus.Gauge // seconds
}

func NewCollector(refreshInterval, clockInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		DatasetLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_dataset_loaded",
			Help: "1 if a schedule dataset is loaded, 0 otherwise.",
		}),
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_dataset_loads_total",
			Help: "Dataset load attempts by result.",
		}, []string{"result"}),
		DayCacheBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_day_cache_builds_total",
			Help: "Number of service-day departure cache rebuilds.",
		}),
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_queries_total",
			Help: "Upcoming-departure queries served.",
		}),
		DeparturesReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signage_departures_returned",
			Help:    "Departures returned per query.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		BoardRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_board_refreshes_total",
			Help: "Total board recomputations.",
		}),
		BoardRefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signage_board_refresh_duration_seconds",
			Help:    "Duration of a full board recomputation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signage_nats_publish_duration_seconds",
			Help:    "Duration of a single NATS publish call.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_board_refresh_interval_seconds",
			Help: "Board refresh interval in seconds.",
		}),
		ClockInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_clock_interval_seconds",
			Help: "Clock tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.DatasetLoaded, c.DatasetLoads,
		c.DayCacheBuilds, c.Queries, c.DeparturesReturned,
		c.BoardRefreshes, c.BoardRefreshDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.HTTPRequests,
		c.RefreshInterval, c.ClockInterval,
	)

	c.RefreshInterval.Set(refreshInterval.Seconds())
	c.ClockInterval.Set(clockInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}
