package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/jobintel/pipeline/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := &fakeStore{}
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowDays: 1, SuccessRateThreshold: 0.5})
	checker := NewChecker(collector, alerter, &fakeNotifier{}, config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowDays: 1})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := &fakeStore{}
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{})

	checker := NewChecker(collector, alerter, &fakeNotifier{}, config.MonitoringConfig{CheckIntervalSecs: 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
