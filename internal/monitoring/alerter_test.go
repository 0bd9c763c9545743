package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/store"
)

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) SendAlert(ctx context.Context, job model.CanonicalJob, analysis *model.FitAnalysis) error {
	return nil
}
func (f *fakeNotifier) SendSystemAlert(ctx context.Context, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	return nil
}
func (f *fakeNotifier) SendDigest(ctx context.Context, kind model.DigestKind, jobs []model.CanonicalJob) error {
	return nil
}

func testCfg() config.MonitoringConfig {
	return config.MonitoringConfig{SuccessRateThreshold: 0.5, MinJobsFound: 3}
}

func TestAlerter_Evaluate_NoAlertsOnHealthySnapshot(t *testing.T) {
	a := NewAlerter(testCfg())
	snap := &MetricsSnapshot{
		LastIngestRun:      &model.RunLog{Status: model.RunStatusCompleted},
		Sources:            []store.SourceAnalytic{{Source: "greenhouse", JobsFound: 10, SuccessRate: 0.9}},
		OverallSuccessRate: 0.9,
		TotalJobsFound:     10,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FlagsFailedRun(t *testing.T) {
	a := NewAlerter(testCfg())
	snap := &MetricsSnapshot{LastIngestRun: &model.RunLog{ID: "r1", Status: model.RunStatusFailed}}

	alerts := a.Evaluate(snap)
	// Nothing was found either, so the starvation alert fires as well.
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertIngestRunFailed, alerts[0].Type)
}

func TestAlerter_Evaluate_FlagsLowOverallSuccessRate(t *testing.T) {
	a := NewAlerter(testCfg())
	snap := &MetricsSnapshot{OverallSuccessRate: 0.1, TotalJobsFound: 10}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowSuccessRate, alerts[0].Type)
}

func TestAlerter_Evaluate_IgnoresLowSuccessBelowMinJobs(t *testing.T) {
	a := NewAlerter(testCfg())
	snap := &MetricsSnapshot{OverallSuccessRate: 0.0, TotalJobsFound: 1}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FlagsPerSourceLowSuccessRate(t *testing.T) {
	a := NewAlerter(testCfg())
	snap := &MetricsSnapshot{
		Sources:            []store.SourceAnalytic{{Source: "lever", JobsFound: 5, SuccessRate: 0.2}},
		OverallSuccessRate: 0.2,
		TotalJobsFound:     5,
	}

	alerts := a.Evaluate(snap)
	// One overall alert, one per-source alert.
	assert.Len(t, alerts, 2)
}

func TestAlerter_Evaluate_FlagsStarvation(t *testing.T) {
	a := NewAlerter(testCfg())
	snap := &MetricsSnapshot{LastIngestRun: &model.RunLog{ID: "r1", Status: model.RunStatusCompleted}, TotalJobsFound: 0}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSourceStarvation, alerts[0].Type)
}

func TestAlerter_SendAlerts_CountsSuccesses(t *testing.T) {
	a := NewAlerter(testCfg())
	nt := &fakeNotifier{}

	sent := a.SendAlerts(context.Background(), nt, []Alert{{Type: AlertIngestRunFailed, Message: "boom"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"boom"}, nt.sent)
}

func TestAlerter_SendAlerts_SkipsFailedSends(t *testing.T) {
	a := NewAlerter(testCfg())
	nt := &fakeNotifier{err: assertErr{"down"}}

	sent := a.SendAlerts(context.Background(), nt, []Alert{{Type: AlertIngestRunFailed, Message: "boom"}})
	assert.Equal(t, 0, sent)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
