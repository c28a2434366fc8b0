// Package metrics exports progression activity as Prometheus series.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

const namespace = "progression"

// Collector counts notifications, failure reports and celebrations.
//
// It owns its registry so tests and multiple engines in one process never
// collide on the global default registerer.
type Collector struct {
	registry *prometheus.Registry

	unlocks       *prometheus.CounterVec
	progress      *prometheus.CounterVec
	levelUps      prometheus.Counter
	xpGained      *prometheus.CounterVec
	reports       *prometheus.CounterVec
	celebrations  *prometheus.CounterVec
	operationTime *prometheus.HistogramVec
}

// New creates a Collector with its own registry. withRuntime adds the Go
// runtime and process collectors.
func New(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Achievements unlocked by category and rarity",
		}, []string{"category", "rarity"}),
		progress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievement_progress_total",
			Help:      "Non-terminal achievement progress updates by category",
		}, []string{"category"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level boundaries crossed",
		}),
		xpGained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_gained_total",
			Help:      "XP awarded by source kind",
		}, []string{"source"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_reports_total",
			Help:      "Failure reports by category and severity",
		}, []string{"category", "severity"}),
		celebrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "celebrations_total",
			Help:      "Celebrations triggered by intensity",
		}, []string{"intensity"}),
		operationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Identity store call latency by operation and outcome",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation", "outcome"}),
	}

	c.registry.MustRegister(c.unlocks, c.progress, c.levelUps, c.xpGained, c.reports, c.celebrations, c.operationTime)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Handle is a shared.EventHandler. Subscribe it to the engine notifier.
func (c *Collector) Handle(_ context.Context, event shared.Event) error {
	switch e := event.(type) {
	case progression.AchievementUnlockedEvent:
		c.unlocks.WithLabelValues(string(e.Category), string(e.Rarity)).Inc()
	case progression.AchievementProgressEvent:
		c.progress.WithLabelValues(string(e.Category)).Inc()
	case progression.LevelUpEvent:
		c.levelUps.Inc()
	case progression.XPGainedEvent:
		c.xpGained.WithLabelValues(sourceKind(e.Source)).Add(float64(e.Amount))
	}
	return nil
}

// ObserveReport counts a failure report. Register it with the reporter.
func (c *Collector) ObserveReport(report shared.ErrorReport) {
	c.reports.WithLabelValues(string(report.Category), string(report.Severity)).Inc()
}

// ObserveCelebration counts a celebration trigger.
func (c *Collector) ObserveCelebration(intensity progression.Intensity) {
	c.celebrations.WithLabelValues(string(intensity)).Inc()
}

// ObserveOperation records the latency of one identity-store call.
func (c *Collector) ObserveOperation(operation string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(shared.CategoryOf(err))
	}
	c.operationTime.WithLabelValues(operation, outcome).Observe(seconds)
}

// sourceKind folds per-achievement sources into one label value so the
// series count stays bounded by the catalog, not by user activity.
func sourceKind(source string) string {
	switch source {
	case progression.SourceLesson, progression.SourceArtwork, progression.SourceShare, progression.SourceChallenge:
		return source
	}
	if id, ok := strings.CutPrefix(source, "achievement:"); ok && id != "" {
		return "achievement"
	}
	return "other"
}
