package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/notifier"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertIngestRunFailed  AlertType = "ingest_run_failed"
	AlertLowSuccessRate   AlertType = "low_success_rate"
	AlertSourceStarvation AlertType = "source_starvation"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType
	Message   string
	Timestamp time.Time
}

// Alerter evaluates a MetricsSnapshot against configured thresholds.
type Alerter struct {
	cfg config.MonitoringConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{cfg: cfg}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.LastIngestRun != nil && snap.LastIngestRun.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:      AlertIngestRunFailed,
			Message:   fmt.Sprintf("last ingest run %s failed with %d error(s)", snap.LastIngestRun.ID, len(snap.LastIngestRun.Errors)),
			Timestamp: now,
		})
	}

	if snap.TotalJobsFound >= a.cfg.MinJobsFound && snap.OverallSuccessRate < a.cfg.SuccessRateThreshold {
		alerts = append(alerts, Alert{
			Type: AlertLowSuccessRate,
			Message: fmt.Sprintf("overall connector success rate %.0f%% is below threshold %.0f%% over the last %d day(s)",
				snap.OverallSuccessRate*100, a.cfg.SuccessRateThreshold*100, snap.LookbackDays),
			Timestamp: now,
		})
	}

	for _, s := range snap.Sources {
		if s.JobsFound >= a.cfg.MinJobsFound && s.SuccessRate < a.cfg.SuccessRateThreshold {
			alerts = append(alerts, Alert{
				Type: AlertLowSuccessRate,
				Message: fmt.Sprintf("source %q success rate %.0f%% is below threshold %.0f%% (%d found, %d new)",
					s.Source, s.SuccessRate*100, a.cfg.SuccessRateThreshold*100, s.JobsFound, s.JobsNew),
				Timestamp: now,
			})
		}
	}

	if snap.TotalJobsFound == 0 && snap.LastIngestRun != nil {
		alerts = append(alerts, Alert{
			Type:      AlertSourceStarvation,
			Message:   fmt.Sprintf("no jobs found from any source in the last %d day(s)", snap.LookbackDays),
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts through the shared notifier and returns the
// number successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, nt notifier.Notifier, alerts []Alert) int {
	sent := 0
	for _, alert := range alerts {
		if err := nt.SendSystemAlert(ctx, alert.Message); err != nil {
			zap.L().Error("monitoring: failed to send alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
