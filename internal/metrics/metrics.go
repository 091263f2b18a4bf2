// Package metrics records sync outcomes as Prometheus metrics that can be
// written to a node_exporter textfile after each run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
)

// SyncMetrics holds the collectors for a single run.
type SyncMetrics struct {
	registry        *prometheus.Registry
	reposTotal      *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	lastRunSeconds  prometheus.Gauge
	lastRunFailures prometheus.Gauge
}

// New creates SyncMetrics registered on a private registry.
func New() *SyncMetrics {
	m := &SyncMetrics{
		registry: prometheus.NewRegistry(),
		reposTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gh_sync_forks",
			Name:      "repositories_total",
			Help:      "Repositories visited, by outcome.",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gh_sync_forks",
			Name:      "sync_duration_seconds",
			Help:      "Wall time spent syncing a single repository.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		lastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gh_sync_forks",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run completed.",
		}),
		lastRunFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gh_sync_forks",
			Name:      "last_run_failures",
			Help:      "Repositories that failed in the last run.",
		}),
	}
	m.registry.MustRegister(m.reposTotal, m.syncDuration, m.lastRunSeconds, m.lastRunFailures)
	return m
}

// Observe records the result of one repository.
func (m *SyncMetrics) Observe(result *domain.SyncResult) {
	m.reposTotal.WithLabelValues(string(result.Outcome)).Inc()
	if result.Outcome == domain.OutcomeFailed {
		m.lastRunFailures.Inc()
	}
	if result.Outcome != domain.OutcomeSkipped {
		m.syncDuration.Observe(result.Duration.Seconds())
	}
}

// MarkCompleted stamps the time the run finished.
func (m *SyncMetrics) MarkCompleted(t time.Time) {
	m.lastRunSeconds.Set(float64(t.Unix()))
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *SyncMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
