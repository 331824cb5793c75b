package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	proxyRequestsTotal *prometheus.CounterVec
	originFetchSeconds prometheus.Histogram
	bytesStreamedTotal prometheus.Counter
	tokensMintedTotal  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	proxyRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_proxy_requests_total",
		Help: "Proxy requests by outcome (manifest, segment, key, error)",
	}, []string{"outcome"})
	originFetchSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamgate_origin_fetch_seconds",
		Help:    "Time until origin response headers arrive",
		Buckets: prometheus.DefBuckets,
	})
	bytesStreamedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_bytes_streamed_total",
		Help: "Bytes streamed through to clients",
	})
	tokensMintedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_tokens_minted_total",
		Help: "Tokens minted via /get-proxy and lecture lookups",
	})

	registry.MustRegister(
		proxyRequestsTotal,
		originFetchSeconds,
		bytesStreamedTotal,
		tokensMintedTotal,
	)

	return &Metrics{
		registry:           registry,
		proxyRequestsTotal: proxyRequestsTotal,
		originFetchSeconds: originFetchSeconds,
		bytesStreamedTotal: bytesStreamedTotal,
		tokensMintedTotal:  tokensMintedTotal,
	}
}

func (m *Metrics) IncProxyRequest(outcome string) {
	if m == nil {
		return
	}
	m.proxyRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOriginFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.originFetchSeconds.Observe(d.Seconds())
}

func (m *Metrics) AddBytesStreamed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesStreamedTotal.Add(float64(n))
}

func (m *Metrics) IncTokensMinted() {
	if m == nil {
		return
	}
	m.tokensMintedTotal.Inc()
}

// Handler serves the gateway's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
