// Package notifier delivers job alerts and digests to an external chat
// transport, with a null implementation for dry runs and a Telegram bot-API
// client for production use.
package notifier

import (
	"context"

	"github.com/jobintel/pipeline/internal/model"
)

// Notifier is the contract the orchestrator uses to deliver alerts.
// Implementations should treat transient send failures as retryable: the
// orchestrator persists a RetryQueueItem via store.EnqueueRetry when SendAlert
// returns an error, and a separate retry-alerts command flushes the queue.
type Notifier interface {
	// SendAlert notifies about a single job that cleared the alert threshold.
	SendAlert(ctx context.Context, job model.CanonicalJob, analysis *model.FitAnalysis) error

	// SendSystemAlert notifies about an operational condition (run failure,
	// board discovery starvation, connector circuit trip).
	SendSystemAlert(ctx context.Context, message string) error

	// SendDigest sends a rollup of jobs for the given kind (daily/weekly).
	SendDigest(ctx context.Context, kind model.DigestKind, jobs []model.CanonicalJob) error
}

// NullNotifier discards every call. Used for DRY_RUN mode and tests where
// alert delivery is out of scope.
type NullNotifier struct{}

// NewNullNotifier returns a Notifier that never sends anything.
func NewNullNotifier() *NullNotifier { return &NullNotifier{} }

func (NullNotifier) SendAlert(ctx context.Context, job model.CanonicalJob, analysis *model.FitAnalysis) error {
	return nil
}

func (NullNotifier) SendSystemAlert(ctx context.Context, message string) error { return nil }

func (NullNotifier) SendDigest(ctx context.Context, kind model.DigestKind, jobs []model.CanonicalJob) error {
	return nil
}
