// Package metrics wraps a Prometheus HistogramVec behind the small
// Recorder interface the metrics stock filter uses, grounded on
// metrics/prometheus.go's HistogramVec-per-concern shape but trimmed to
// the single "request_class/path/method/status" observation §4.7
// requires.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hyperswitch"

// Recorder is the interface handler and filter code depends on; the
// dispatcher's Context wraps a concrete *Prometheus behind it so tests
// can substitute Noop().
type Recorder interface {
	ObserveRequest(class, path, method, status string, elapsed time.Duration)
}

// Prometheus is the production Recorder backend.
type Prometheus struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
}

// NewPrometheus builds a Recorder registered into a fresh registry
// (RegisterHandler exposes it for scraping).
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "request",
		Name:      "duration_seconds",
		Help:      "Duration in seconds of a routed HyperSwitch request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"request_class", "path", "method", "status"})
	reg.MustRegister(duration)
	return &Prometheus{registry: reg, duration: duration}
}

func (p *Prometheus) ObserveRequest(class, path, method, status string, elapsed time.Duration) {
	p.duration.WithLabelValues(class, path, method, status).Observe(elapsed.Seconds())
}

// RegisterHandler mounts the Prometheus scrape endpoint on mux.
func (p *Prometheus) RegisterHandler(path string, mux *http.ServeMux) {
	mux.Handle(path, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}

// Noop discards every observation; used as the default Recorder when a
// host application injects none.
func Noop() Recorder { return noopRecorder{} }

type noopRecorder struct{}

func (noopRecorder) ObserveRequest(string, string, string, string, time.Duration) {}

// StatusLabel formats an HTTP status for use as a metric label.
func StatusLabel(status int) string { return strconv.Itoa(status) }
