// Package metrics exposes request-level prometheus instrumentation.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	logger          *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		requestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "bank_requests_total",
			Help: "Total number of handled requests",
		}, []string{"route", "method", "status"}),
		requestDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bank_request_duration_seconds",
			Help:    "Time taken to handle a request",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		logger: logger,
	}
}

// RecordRequest counts one handled request and observes its duration.
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler serves the /metrics scrape endpoint. Scrape failures are reported
// through the collector's logger.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: promhttpLogger{c.logger},
	})
}

// promhttpLogger adapts slog to the promhttp error log interface.
type promhttpLogger struct {
	logger *slog.Logger
}

func (l promhttpLogger) Println(v ...interface{}) {
	l.logger.Error("metrics scrape failed", "error", fmt.Sprint(v...))
}
