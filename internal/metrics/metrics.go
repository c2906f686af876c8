// Package metrics exposes Prometheus metrics of the ledger server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omikuji"

// Collector records ledger outcomes and RPC latencies.
// It satisfies service.Hooks and grpcserver.RPCObserver.
type Collector struct {
	consents    prometheus.Counter
	revocations prometheus.Counter
	draws       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	rpcs        *prometheus.CounterVec
	rpcLatency  *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		consents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consents_recorded_total",
			Help:      "Consents recorded.",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consents_revoked_total",
			Help:      "Active consents revoked.",
		}),
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_recorded_total",
			Help:      "Draws recorded, by deck.",
		}, []string{"deck"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_rejected_total",
			Help:      "Draws rejected, by reason.",
		}, []string{"reason"}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Unary RPCs handled, by method and status code.",
		}, []string{"method", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "Unary RPC latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(c.consents, c.revocations, c.draws, c.rejected, c.rpcs, c.rpcLatency)
	return c
}

func (c *Collector) ConsentRecorded() { c.consents.Inc() }

func (c *Collector) ConsentRevoked() { c.revocations.Inc() }

func (c *Collector) DrawRecorded(deck string) { c.draws.WithLabelValues(deck).Inc() }

func (c *Collector) DrawRejected(reason string) { c.rejected.WithLabelValues(reason).Inc() }

// ObserveRPC records one finished unary call.
func (c *Collector) ObserveRPC(method, code string, d time.Duration) {
	c.rpcs.WithLabelValues(method, code).Inc()
	c.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute serves /metrics from gatherer and a /healthz liveness check.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
