package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder captures backup cycle and retention metrics.
type Recorder interface {
	ObserveCycle(trigger, status string, durationSeconds float64)
	AddPruned(backend, bucket string, n int)
	IncUploadFailures()
	SetLastSuccess(unixSeconds float64)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveCycle(string, string, float64) {}
func (Noop) AddPruned(string, string, int)        {}
func (Noop) IncUploadFailures()                   {}
func (Noop) SetLastSuccess(float64)               {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	cycles         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	pruned         *prometheus.CounterVec
	uploadFailures prometheus.Counter
	lastSuccess    prometheus.Gauge
	gatherer       prometheus.Gatherer
}

// NewProm registers the collectors on reg. A nil reg uses a fresh registry,
// which keeps tests and multiple instances independent.
func NewProm(namespace string, reg *prometheus.Registry) *Prom {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p := &Prom{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Backup cycles by trigger and status",
		}, []string{"trigger", "status"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Backup cycle duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"status"}),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_artifacts_total",
			Help:      "Artifacts deleted by retention per backend and bucket",
		}, []string{"backend", "bucket"}),
		uploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_failures_total",
			Help:      "Failed uploads to the object store",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle",
		}),
		gatherer: reg,
	}
	reg.MustRegister(p.cycles, p.cycleDuration, p.pruned, p.uploadFailures, p.lastSuccess)
	return p
}

func (p *Prom) ObserveCycle(trigger, status string, durationSeconds float64) {
	p.cycles.WithLabelValues(trigger, status).Inc()
	p.cycleDuration.WithLabelValues(status).Observe(durationSeconds)
}

func (p *Prom) AddPruned(backend, bucket string, n int) {
	if n <= 0 {
		return
	}
	p.pruned.WithLabelValues(backend, bucket).Add(float64(n))
}

func (p *Prom) IncUploadFailures() {
	p.uploadFailures.Inc()
}

func (p *Prom) SetLastSuccess(unixSeconds float64) {
	p.lastSuccess.Set(unixSeconds)
}

// Handler returns an HTTP handler for /metrics serving this recorder's registry.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
