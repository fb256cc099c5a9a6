package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Collector struct {
	reg *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec   // endpoint, status
	UpstreamDuration *prometheus.HistogramVec // endpoint

	BoardsBuilt    prometheus.Counter
	BoardErrors    prometheus.Counter
	WatchedStops   prometheus.Gauge
	WSClients      prometheus.Gauge
	StopsIndexed   prometheus.Gauge
	IndexRefreshes *prometheus.CounterVec // result: ok|error

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	BoardRefreshInterval prometheus.Gauge // seconds
	PreviewMinutes       prometheus.Gauge
}

func NewCollector(boardRefresh time.Duration, previewMinutes int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arrivals_upstream_requests_total",
			Help: "Transit API requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arrivals_upstream_request_duration_seconds",
			Help:    "Latency of transit API requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"endpoint"}),
		BoardsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arrivals_boards_built_total",
			Help: "Arrival boards rendered.",
		}),
		BoardErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arrivals_board_errors_total",
			Help: "Arrival board refreshes that failed to fetch departures.",
		}),
		WatchedStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arrivals_watched_stops",
			Help: "Stops with a live board refresher running.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arrivals_websocket_clients",
			Help: "Connected websocket clients.",
		}),
		StopsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arrivals_stops_indexed",
			Help: "Parent stops in the search index.",
		}),
		IndexRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arrivals_index_refreshes_total",
			Help: "Stop index reloads by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arrivals_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arrivals_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arrivals_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arrivals_publish_duration_seconds",
			Help:    "Duration to marshal and publish a board to NATS.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		BoardRefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arrivals_board_refresh_interval_seconds",
			Help: "Live board refresh interval in seconds.",
		}),
		PreviewMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arrivals_preview_minutes",
			Help: "Departure look-ahead window requested from the transit API.",
		}),
	}

	reg.MustRegister(
		c.UpstreamRequests, c.UpstreamDuration,
		c.BoardsBuilt, c.BoardErrors, c.WatchedStops, c.WSClients,
		c.StopsIndexed, c.IndexRefreshes,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.BoardRefreshInterval, c.PreviewMinutes,
	)

	c.BoardRefreshInterval.Set(boardRefresh.Seconds())
	c.PreviewMinutes.Set(float64(previewMinutes))

	return c
}

// ObserveRequest records one transit API call.
func (c *Collector) ObserveRequest(endpoint, status string, d time.Duration) {
	c.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	c.UpstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(logger *zap.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return srv
}
