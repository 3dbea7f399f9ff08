// Package metrics holds the Prometheus collectors of the tile generator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yakkun/terrain-grid-gen/internal/dat"
	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/mosaic"
)

const namespace = "terrain"

type Metrics struct {
	registry *prometheus.Registry

	tiles         *prometheus.CounterVec
	tileBytes     prometheus.Counter
	blockDuration *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	requests      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_total",
			Help:      "Degree tile requests by result state.",
		}, []string{"state"}),
		tileBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_bytes_written_total",
			Help:      "Bytes of terrain files written.",
		}),
		blockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_encode_seconds",
			Help:      "Time to sample and pack one grid block.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"coverage"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source cell retrievals by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_seconds",
			Help:      "Time to retrieve and decode one source cell.",
			Buckets:   prometheus.DefBuckets,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		m.tiles, m.tileBytes, m.blockDuration, m.fetches, m.fetchDuration, m.requests,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTile(res *dat.Result) {
	m.tiles.WithLabelValues(res.State.String()).Inc()
	if res.State == dat.StateReady && !res.Reused {
		m.tileBytes.Add(float64(res.Bytes))
	}
}

func (m *Metrics) ObserveBlock(coverage mosaic.Coverage, d time.Duration) {
	m.blockDuration.WithLabelValues(coverage.String()).Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(_ elevation.CellID, outcome string, d time.Duration) {
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
