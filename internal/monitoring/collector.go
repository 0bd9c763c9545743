// Package monitoring runs a periodic background check of source health and
// recent run outcomes, alerting through the same notifier the pipeline uses
// for job alerts rather than a separate transport.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/store"
)

// MetricsSnapshot holds a point-in-time view of ingest health.
type MetricsSnapshot struct {
	LookbackDays       int
	CollectedAt        time.Time
	LastIngestRun      *model.RunLog
	Sources            []store.SourceAnalytic
	OverallSuccessRate float64
	TotalJobsFound     int
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of ingest health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackDays int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackDays: lookbackDays,
		CollectedAt:  time.Now().UTC(),
	}

	lastRun, err := c.store.LastFinishedRunLog(ctx, model.RunTypeIngest)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: last ingest run")
	}
	snap.LastIngestRun = lastRun

	sources, err := c.store.SourceAnalytics(ctx, lookbackDays)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: source analytics")
	}
	snap.Sources = sources

	var weightedSuccess, totalFound float64
	for _, s := range sources {
		weightedSuccess += s.SuccessRate * float64(s.JobsFound)
		totalFound += float64(s.JobsFound)
		snap.TotalJobsFound += s.JobsFound
	}
	if totalFound > 0 {
		snap.OverallSuccessRate = weightedSuccess / totalFound
	}

	return snap, nil
}
