// Package scheduler drives the pipeline orchestrator on fixed cron slots,
// with a single-flight run guard and startup catch-up logic.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/notifier"
	"github.com/jobintel/pipeline/internal/pipeline"
	"github.com/jobintel/pipeline/internal/store"
)

// catchUpAfter is how long past the last finished run triggers a
// startup catch-up run.
const catchUpAfter = 4 * time.Hour

// runner is the subset of *pipeline.Orchestrator the scheduler depends on.
type runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*model.RunLog, error)
}

// Scheduler wraps robfig/cron and fires the orchestrator on the job-search
// cron table, refusing to start a new run while one is already in flight.
type Scheduler struct {
	cron     *cron.Cron
	orch     runner
	st       store.Store
	notifier notifier.Notifier
	loc      *time.Location
	logger   *zap.Logger

	running int32 // atomic; 1 while a run is in flight
}

// New builds a Scheduler in the given timezone. tz must be a valid IANA
// location name (e.g. "America/Toronto"); an empty string means UTC.
func New(orch runner, st store.Store, nt notifier.Notifier, tz string, logger *zap.Logger) (*Scheduler, error) {
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: load timezone %q", tz)
		}
		loc = l
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithLogger(zapCronLogger{logger})),
		orch:     orch,
		st:       st,
		notifier: nt,
		loc:      loc,
		logger:   logger,
	}, nil
}

// Start registers every cron slot from the job-search schedule and starts
// the cron loop. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	slots := []struct {
		spec string
		fn   func(context.Context)
	}{
		{"0 */3 * * *", s.runATSSweep},
		{"0 8,20 * * *", s.runAggregatorSweep},
		{"0 8,20 * * *", s.runUndergroundSweep},
		{"5 8 * * *", s.runPreMorningIngest},
		{"30 8 * * *", s.runMorningDigest},
		{"30 17 * * *", s.runPreEveningIngest},
		{"0 18 * * *", s.runEveningDigest},
		{"0 19 * * 0", s.runWeeklyReport},
		{"0 3 * * 0", s.runArchivePurge},
	}

	for _, slot := range slots {
		fn := slot.fn
		if _, err := s.cron.AddFunc(slot.spec, func() { fn(ctx) }); err != nil {
			return eris.Wrapf(err, "scheduler: register cron slot %q", slot.spec)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("slots", len(slots)), zap.String("timezone", s.loc.String()))

	s.catchUp(ctx)

	return nil
}

// Stop halts the cron loop and waits for any running job to finish
// dispatching. It does not cancel an in-flight pipeline run.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// catchUp fires an ATS-only catch-up run if the last completed ingest run
// finished more than catchUpAfter ago, or never ran at all.
func (s *Scheduler) catchUp(ctx context.Context) {
	last, err := s.st.LastFinishedRunLog(ctx, model.RunTypeIngest)
	if err != nil {
		s.logger.Error("scheduler: catch-up lookup failed", zap.Error(err))
		return
	}

	if last != nil && last.FinishedAt != nil && time.Since(*last.FinishedAt) < catchUpAfter {
		return
	}

	s.logger.Info("scheduler: running catch-up ingest")
	s.runGuarded(ctx, "catchup", func(ctx context.Context) (*model.RunLog, error) {
		return s.orch.Run(ctx, pipeline.RunOptions{
			Type:      model.RunTypeCatchup,
			Connector: pipeline.RunConnectorOptions{IncludeATS: true},
		})
	})
}

func (s *Scheduler) runATSSweep(ctx context.Context) {
	s.runGuarded(ctx, "ats_sweep", func(ctx context.Context) (*model.RunLog, error) {
		return s.orch.Run(ctx, pipeline.RunOptions{
			Type:      model.RunTypeIngest,
			Connector: pipeline.RunConnectorOptions{IncludeATS: true},
		})
	})
}

func (s *Scheduler) runAggregatorSweep(ctx context.Context) {
	s.runGuarded(ctx, "aggregator_sweep", func(ctx context.Context) (*model.RunLog, error) {
		return s.orch.Run(ctx, pipeline.RunOptions{
			Type:      model.RunTypeIngest,
			Connector: pipeline.RunConnectorOptions{IncludeAggregators: true},
		})
	})
}

func (s *Scheduler) runUndergroundSweep(ctx context.Context) {
	s.runGuarded(ctx, "underground_sweep", func(ctx context.Context) (*model.RunLog, error) {
		return s.orch.Run(ctx, pipeline.RunOptions{
			Type:      model.RunTypeIngest,
			Connector: pipeline.RunConnectorOptions{IncludeUnderground: true},
		})
	})
}

// runPreMorningIngest covers the "discovery + ATS ingest" slot. Board
// discovery itself runs out-of-band (see cmd's discover subcommand); this
// slot's job is to make sure freshly discovered boards get polled before
// the morning digest goes out.
func (s *Scheduler) runPreMorningIngest(ctx context.Context) {
	s.runGuarded(ctx, "pre_morning_ingest", func(ctx context.Context) (*model.RunLog, error) {
		return s.orch.Run(ctx, pipeline.RunOptions{
			Type:      model.RunTypeIngest,
			Connector: pipeline.RunConnectorOptions{IncludeATS: true},
		})
	})
}

func (s *Scheduler) runPreEveningIngest(ctx context.Context) {
	s.runGuarded(ctx, "pre_evening_ingest", func(ctx context.Context) (*model.RunLog, error) {
		return s.orch.Run(ctx, pipeline.RunOptions{
			Type:      model.RunTypeIngest,
			Connector: pipeline.RunConnectorOptions{IncludeATS: true},
		})
	})
}

func (s *Scheduler) runMorningDigest(ctx context.Context) {
	s.sendDigest(ctx, model.DigestKindDaily, 24*time.Hour)
}

func (s *Scheduler) runEveningDigest(ctx context.Context) {
	s.sendDigest(ctx, model.DigestKindDaily, 10*time.Hour)
}

func (s *Scheduler) runWeeklyReport(ctx context.Context) {
	s.sendDigest(ctx, model.DigestKindWeekly, 7*24*time.Hour)
}

// sendDigest lists active jobs first seen within window and hands them to
// the notifier. It does not go through runGuarded: a digest send is a read
// plus one outbound message, not a pipeline run, and is safe to overlap
// with an in-flight ingest.
func (s *Scheduler) sendDigest(ctx context.Context, kind model.DigestKind, window time.Duration) {
	since := time.Now().In(s.loc).Add(-window)
	jobs, err := s.st.ListCanonicalJobs(ctx, store.JobFilter{
		Status: model.StatusActive,
		Since:  &since,
		Limit:  50,
	})
	if err != nil {
		s.logger.Error("scheduler: digest query failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	if err := s.notifier.SendDigest(ctx, kind, jobs); err != nil {
		s.logger.Error("scheduler: digest send failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Scheduler) runArchivePurge(ctx context.Context) {
	result, err := s.ArchiveAndPurge(ctx, 30, 90)
	if err != nil {
		s.logger.Error("scheduler: archive/purge failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduler: archive/purge complete", zap.Int("archived", result.Archived), zap.Int("purged", result.Purged))
}

// ArchiveAndPurge marks stale active jobs archived and deletes old raw job
// rows. Exposed directly so cmd can offer a manual "archive-old-jobs"
// subcommand alongside the Sunday cron slot.
func (s *Scheduler) ArchiveAndPurge(ctx context.Context, archiveAfterDays, purgeAfterDays int) (store.ArchiveResult, error) {
	result, err := s.st.ArchiveOldJobs(ctx, archiveAfterDays, purgeAfterDays)
	if err != nil {
		return store.ArchiveResult{}, eris.Wrap(err, "scheduler: archive old jobs")
	}
	return result, nil
}

// runGuarded enforces the single-flight rule: if a run is already in
// flight, this tick is skipped and logged rather than queued.
func (s *Scheduler) runGuarded(ctx context.Context, slot string, fn func(context.Context) (*model.RunLog, error)) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		s.logger.Warn("scheduler: skipping tick, a run is already in flight", zap.String("slot", slot))
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	run, err := fn(ctx)
	if err != nil {
		s.logger.Error("scheduler: run failed", zap.String("slot", slot), zap.Error(err))
		if alertErr := s.notifier.SendSystemAlert(ctx, "pipeline run failed: "+slot+": "+err.Error()); alertErr != nil {
			s.logger.Error("scheduler: system alert send failed", zap.Error(alertErr))
		}
		return
	}

	s.logger.Info("scheduler: run complete",
		zap.String("slot", slot),
		zap.String("run_id", run.ID),
		zap.Int("jobs_new", run.JobsNew),
		zap.Int("alerts_sent", run.AlertsSent),
	)
}

// zapCronLogger adapts *zap.Logger to cron.Logger.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
