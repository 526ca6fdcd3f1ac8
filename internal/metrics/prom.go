package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dirdoctor/internal/model"
)

const (
	// Namespace prefixes every exported metric.
	Namespace = "dirdoctor"
	// FetchSubsystem groups the per-request metrics.
	FetchSubsystem = "fetch"
)

// Collector exports the state of the latest run.
type Collector struct {
	reg *prometheus.Registry

	FetchDuration *prometheus.GaugeVec
	FetchSuccess  *prometheus.GaugeVec
	Outcomes      *prometheus.CounterVec
	Warnings      *prometheus.GaugeVec
	Runs          prometheus.Counter
	LastRun       prometheus.Gauge
	RunDuration   prometheus.Gauge
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		FetchDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: FetchSubsystem,
			Name:      "duration_seconds",
			Help:      "Duration of the latest request per authority and document class.",
		}, []string{"peer", "class"}),
		FetchSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: FetchSubsystem,
			Name:      "success",
			Help:      "1 if the latest request per authority and document class succeeded.",
		}, []string{"peer", "class"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: FetchSubsystem,
			Name:      "outcomes_total",
			Help:      "Requests by authority and outcome.",
		}, []string{"peer", "outcome"}),
		Warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "warning_details",
			Help:      "Number of affected entries per firing warning kind.",
		}, []string{"kind", "severity"}),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Completed check runs.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the latest completed run.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the latest completed run.",
		}),
	}
	c.reg.MustRegister(c.FetchDuration, c.FetchSuccess, c.Outcomes, c.Warnings, c.Runs, c.LastRun, c.RunDuration)
	return c
}

// ObserveFetches records the requests of one run.
func (c *Collector) ObserveFetches(records []model.FetchRecord) {
	for _, r := range records {
		class := r.Class.String()
		c.FetchDuration.WithLabelValues(r.Peer, class).Set(r.Duration.Seconds())
		ok := 0.0
		if r.Outcome == model.Success {
			ok = 1
		}
		c.FetchSuccess.WithLabelValues(r.Peer, class).Set(ok)
		c.Outcomes.WithLabelValues(r.Peer, r.Outcome.String()).Inc()
	}
}

// WarningGauge is one firing warning kind.
type WarningGauge struct {
	Kind     string
	Severity string
	Details  int
}

// SetWarnings replaces the warning gauges.
func (c *Collector) SetWarnings(ws []WarningGauge) {
	c.Warnings.Reset()
	for _, w := range ws {
		c.Warnings.WithLabelValues(w.Kind, w.Severity).Set(float64(w.Details))
	}
}

// ObserveRun marks a run as finished.
func (c *Collector) ObserveRun(finished time.Time, took time.Duration) {
	c.Runs.Inc()
	c.LastRun.Set(float64(finished.Unix()))
	c.RunDuration.Set(took.Seconds())
}

// Gatherer exposes the registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.reg
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.reg)
}
