package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/analyzer"
	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/connector"
	"github.com/jobintel/pipeline/internal/dedup"
	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/normalize"
	"github.com/jobintel/pipeline/internal/notifier"
	"github.com/jobintel/pipeline/internal/score"
	"github.com/jobintel/pipeline/internal/store"
)

// RunConnectorOptions selects which source categories a run drives.
type RunConnectorOptions struct {
	IncludeATS          bool
	IncludeAggregators  bool
	IncludeUnderground  bool
}

// RunOptions configures one Orchestrator.Run invocation.
type RunOptions struct {
	Type      model.RunType
	DryRun    bool
	Connector RunConnectorOptions
}

// sourceAgg accumulates one source's daily metrics across the whole run,
// in-memory, before a single additive upsert at the end.
type sourceAgg struct {
	jobsFound         int
	jobsNew           int
	jobsDuplicate     int
	parseFailures     int
	rateLimitHits     int
	responseTimesMs   []float64
	successAttempts   int
	totalAttempts     int
}

// analysisCandidate pairs a persisted canonical job with the raw
// description text the fit analyzer needs, which the canonical row
// itself does not retain.
type analysisCandidate struct {
	Job             model.CanonicalJob
	DescriptionHTML string
}

// Orchestrator drives one end-to-end pipeline run: connector dispatch,
// normalization, dedup, scoring, fit analysis, and alert delivery,
// against a single Store writer.
type Orchestrator struct {
	store       store.Store
	connectors  map[string]connector.Connector
	cfg         *config.Config
	normCfg     normalize.Config
	scoreCfg    score.Config
	analyzer    analyzer.Analyzer
	notifier    notifier.Notifier
	resume      string
	analyzerCon int
	logger      *zap.Logger
}

// New wires an Orchestrator from its dependencies. connectors is keyed by
// SourceConfig.Type (e.g. "greenhouse", "indeed_search"), matching the
// Name() each Connector reports. analyzerConcurrency should be the LLM
// key pool's size; it is clamped to at least 1.
func New(
	cfg *config.Config,
	st store.Store,
	connectors map[string]connector.Connector,
	az analyzer.Analyzer,
	nt notifier.Notifier,
	resume string,
	analyzerConcurrency int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	normCfg, err := normalize.NewConfig(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build normalize config")
	}

	if analyzerConcurrency < 1 {
		analyzerConcurrency = 1
	}

	return &Orchestrator{
		store:       st,
		connectors:  connectors,
		cfg:         cfg,
		normCfg:     normCfg,
		scoreCfg:    score.NewConfig(cfg),
		analyzer:    az,
		notifier:    nt,
		resume:      resume,
		analyzerCon: analyzerConcurrency,
		logger:      logger,
	}, nil
}

// Run executes the ten-phase pipeline and returns the completed RunLog.
// A failure processing any single job is recorded in RunLog.Errors and
// does not abort the run.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*model.RunLog, error) {
	run, err := o.store.CreateRunLog(ctx, model.RunLog{Type: opts.Type, DryRun: opts.DryRun, Status: model.RunStatusRunning})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run log")
	}

	agg := make(map[string]*sourceAgg)
	isBackfill := opts.Type == model.RunTypeBackfill

	rawJobs := o.dispatchConnectors(ctx, opts.Connector, run, agg)

	idx, err := dedup.BuildIndex(ctx, o.store, o.cfg.Pipeline.FuzzyDedupWindowDays)
	if err != nil {
		return o.finishFailed(ctx, run, eris.Wrap(err, "pipeline: build dedup index"))
	}

	var toAnalyze []analysisCandidate
	var toAlert []model.CanonicalJob

	for _, raw := range rawJobs {
		o.processRawJobSafely(ctx, raw, idx, run, agg, isBackfill, &toAnalyze, &toAlert)
	}
	// idx is scoped to this run and goes out of use here; there is no
	// cross-run dedup index to persist.

	analyses := o.runAnalyzer(ctx, toAnalyze, run)

	run.AlertsSent = o.dispatchAlerts(ctx, toAlert, analyses, opts.DryRun, run)

	o.commitSourceMetrics(ctx, agg, run)

	run.Status = model.RunStatusCompleted
	finished := time.Now()
	run.FinishedAt = &finished
	if err := o.store.FinishRunLog(ctx, *run); err != nil {
		return run, eris.Wrap(err, "pipeline: finish run log")
	}
	return run, nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, run *model.RunLog, cause error) (*model.RunLog, error) {
	run.Status = model.RunStatusFailed
	run.Errors = append(run.Errors, cause.Error())
	finished := time.Now()
	run.FinishedAt = &finished
	if err := o.store.FinishRunLog(ctx, *run); err != nil {
		o.logger.Error("pipeline: finish failed run log", zap.Error(err))
	}
	return run, cause
}

func (o *Orchestrator) aggFor(agg map[string]*sourceAgg, source string) *sourceAgg {
	a, ok := agg[source]
	if !ok {
		a = &sourceAgg{}
		agg[source] = a
	}
	return a
}

// sourceAllowed reports whether a configured source's category is
// selected by opts. Sources with no configured category default to ATS.
func sourceAllowed(category config.SourceCategory, opts RunConnectorOptions) bool {
	switch category {
	case config.CategoryATS:
		return opts.IncludeATS
	case config.CategoryAggregator:
		return opts.IncludeAggregators
	case config.CategoryUnderground:
		return opts.IncludeUnderground
	default:
		return false
	}
}

// dispatchConnectors runs phase 2 and phase 3: for every enabled, selected
// source it merges seed companies with any discovered boards for that
// platform, fetches concurrently via fetcher.BatchFetch, tallies metrics,
// and raises a system alert on the third-and-every-third consecutive
// connector failure for a source/company pair.
func (o *Orchestrator) dispatchConnectors(ctx context.Context, opts RunConnectorOptions, run *model.RunLog, agg map[string]*sourceAgg) []model.RawJob {
	var rawJobs []model.RawJob

	for key, srcCfg := range o.cfg.Sources {
		if !srcCfg.Enabled {
			continue
		}
		if !sourceAllowed(srcCfg.EffectiveCategory(), opts) {
			continue
		}

		conn, ok := o.connectors[srcCfg.Type]
		if !ok {
			run.Errors = append(run.Errors, fmt.Sprintf("pipeline: no connector registered for source %q (type %q)", key, srcCfg.Type))
			continue
		}

		def := connector.SourceDef{
			Type:             srcCfg.Type,
			EndpointTemplate: srcCfg.EndpointTemplate,
			URLTemplate:      srcCfg.URLTemplate,
			Queries:          srcCfg.Queries,
			TimeoutMs:        srcCfg.TimeoutMs,
		}
		if err := conn.ValidateConfig(def); err != nil {
			run.Errors = append(run.Errors, eris.Wrapf(err, "pipeline: validate source %q", key).Error())
			continue
		}

		seeds, boardBySlug := o.companySeedsFor(ctx, key, srcCfg)
		if len(seeds) == 0 {
			continue
		}

		results, errs := fetcher.BatchFetch(ctx, seeds, fetcher.BatchOptions{
			Concurrency: o.cfg.Pipeline.BatchSize,
			BatchPause:  time.Duration(o.cfg.Pipeline.BatchPauseMs) * time.Millisecond,
		}, func(fctx context.Context, seed connector.CompanySeed) (connector.ConnectorResult, error) {
			return conn.Fetch(fctx, seed, def)
		})

		for i, result := range results {
			if errs[i] != nil {
				run.Errors = append(run.Errors, eris.Wrapf(errs[i], "pipeline: fetch %s/%s", key, seeds[i].Name).Error())
				continue
			}
			o.accumulateConnectorResult(ctx, key, seeds[i], result, run, agg, boardBySlug)
			rawJobs = append(rawJobs, result.Jobs...)
		}
	}

	return rawJobs
}

// companySeedsFor merges configured seed companies with any actively
// discovered boards for this platform. Discovery is treated as disabled
// when no search API keys are configured, since discovery can never have
// populated the boards table in that case. The returned map lets the
// caller update poll state for seeds that came from discovery.
func (o *Orchestrator) companySeedsFor(ctx context.Context, key string, srcCfg config.SourceConfig) ([]connector.CompanySeed, map[string]int64) {
	boardBySlug := make(map[string]int64)
	seen := make(map[string]bool)
	var seeds []connector.CompanySeed

	for _, slug := range o.cfg.Companies[key] {
		if seen[slug] {
			continue
		}
		seen[slug] = true
		seeds = append(seeds, connector.CompanySeed{Name: slug, Slug: slug})
	}

	if srcCfg.EffectiveCategory() == config.CategoryATS && len(o.cfg.SearchAPI.Keys) > 0 {
		boards, err := o.store.ActiveBoardsByPlatform(ctx, key)
		if err != nil {
			o.logger.Warn("pipeline: load discovered boards", zap.String("platform", key), zap.Error(err))
		}
		for _, b := range boards {
			boardBySlug[b.BoardSlug] = b.ID
			if seen[b.BoardSlug] {
				continue
			}
			seen[b.BoardSlug] = true
			seeds = append(seeds, connector.CompanySeed{Name: b.BoardSlug, Slug: b.BoardSlug})
		}
	}

	return seeds, boardBySlug
}

func (o *Orchestrator) accumulateConnectorResult(ctx context.Context, source string, seed connector.CompanySeed, result connector.ConnectorResult, run *model.RunLog, agg map[string]*sourceAgg, boardBySlug map[string]int64) {
	a := o.aggFor(agg, source)
	a.jobsFound += len(result.Jobs)
	a.totalAttempts++
	a.responseTimesMs = append(a.responseTimesMs, float64(result.ResponseTime.Milliseconds()))
	if result.RateLimited {
		a.rateLimitHits++
	}
	if result.Success {
		a.successAttempts++
	}

	if err := o.store.RecordConnectorCheckpoint(ctx, source, seed.Name, result.Success); err != nil {
		o.logger.Warn("pipeline: record connector checkpoint", zap.Error(err))
	}

	if boardID, ok := boardBySlug[seed.Slug]; ok {
		if err := o.store.UpdateBoardPollState(ctx, boardID, result.Success); err != nil {
			o.logger.Warn("pipeline: update board poll state", zap.Error(err))
		}
	}

	if result.Success {
		return
	}

	n, err := o.store.ConsecutiveFailures(ctx, source, seed.Name)
	if err != nil {
		o.logger.Warn("pipeline: read consecutive failures", zap.Error(err))
		return
	}
	if n >= 3 && n%3 == 0 {
		msg := fmt.Sprintf("connector %s/%s has failed %d times in a row: %s", source, seed.Name, n, result.Error)
		if err := o.notifier.SendSystemAlert(ctx, msg); err != nil {
			run.Errors = append(run.Errors, eris.Wrap(err, "pipeline: send system alert").Error())
		}
	}
}

// processRawJobSafely wraps processRawJob with panic recovery, so one
// malformed job can never abort the whole run.
func (o *Orchestrator) processRawJobSafely(ctx context.Context, raw model.RawJob, idx *dedup.Index, run *model.RunLog, agg map[string]*sourceAgg, isBackfill bool, toAnalyze *[]analysisCandidate, toAlert *[]model.CanonicalJob) {
	defer func() {
		if r := recover(); r != nil {
			run.ParseFailures++
			o.aggFor(agg, raw.Source).parseFailures++
			run.Errors = append(run.Errors, fmt.Sprintf("pipeline: panic processing job from %s (%s): %v", raw.Source, raw.URL, r))
		}
	}()

	candidate, alertJob, err := o.processRawJob(ctx, raw, idx, run, agg, isBackfill)
	if err != nil {
		run.ParseFailures++
		o.aggFor(agg, raw.Source).parseFailures++
		run.Errors = append(run.Errors, err.Error())
		return
	}
	if candidate != nil {
		*toAnalyze = append(*toAnalyze, *candidate)
	}
	if alertJob != nil {
		*toAlert = append(*toAlert, *alertJob)
	}
}

// processRawJob implements phase 5 for one raw job: insert, normalize,
// dedup, score, persist, and decide whether it is a candidate for fit
// analysis and/or an alert.
func (o *Orchestrator) processRawJob(ctx context.Context, raw model.RawJob, idx *dedup.Index, run *model.RunLog, agg map[string]*sourceAgg, isBackfill bool) (*analysisCandidate, *model.CanonicalJob, error) {
	rawID, err := o.store.InsertRawJob(ctx, raw)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline: insert raw job (source %s, url %s)", raw.Source, raw.URL)
	}
	raw.ID = rawID
	run.JobsFound++

	now := time.Now()
	result := normalize.Normalize(raw, o.normCfg, now)
	job := result.Job
	job.IsBackfill = isBackfill

	if result.Rejected {
		run.JobsRejected++
		return nil, nil, nil
	}

	dedupResult := idx.Check(job)
	switch {
	case dedupResult.IsDuplicate && !dedupResult.IsPotentialDuplicate:
		run.JobsDuplicate++
		o.aggFor(agg, raw.Source).jobsDuplicate++
		if err := o.store.InsertAlternateURL(ctx, model.AlternateURL{CanonicalJobID: dedupResult.ExistingJobID, Source: raw.Source, URL: raw.URL}); err != nil {
			o.logger.Warn("pipeline: insert alternate url", zap.Error(err))
		}
		return nil, nil, nil
	case dedupResult.IsPotentialDuplicate:
		if err := o.store.InsertJobDuplicate(ctx, model.JobDuplicate{
			NewRawJobID:   raw.ID,
			ExistingJobID: dedupResult.ExistingJobID,
			Method:        dedupResult.Method,
			Similarity:    0.75,
			IsPotential:   true,
		}); err != nil {
			o.logger.Warn("pipeline: insert job duplicate", zap.Error(err))
		}
		job.IsPotentialDuplicate = true
	case dedupResult.IsRepost:
		job.IsReposted = true
		job.OriginalPostDate = dedupResult.OriginalPostDate
	}

	scoreResult := score.Score(job, o.scoreCfg, now)
	job.ScoreFreshness = scoreResult.Freshness
	job.ScoreLocation = scoreResult.Location
	job.ScoreMode = scoreResult.Mode
	job.Score = scoreResult.Total
	job.ScoreBand = scoreResult.Band

	jobID, err := o.store.InsertCanonicalJob(ctx, job)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline: insert canonical job (url %s)", job.URL)
	}
	job.ID = jobID

	idx.Add(dedup.Entry{
		JobID:              job.ID,
		Company:            job.Company,
		Title:              job.Title,
		City:               job.City,
		URLHash:            job.URLHash,
		ContentFingerprint: job.ContentFingerprint,
		FirstSeenAt:        job.FirstSeenAt,
		Status:             job.Status,
	})

	run.JobsNew++
	o.aggFor(agg, raw.Source).jobsNew++

	var candidate *analysisCandidate
	if !job.IsBackfill && job.Score >= o.cfg.LLM.AIAnalysisMinScore {
		candidate = &analysisCandidate{Job: job, DescriptionHTML: raw.Content}
	}

	var alertJob *model.CanonicalJob
	if !job.IsBackfill && job.ScoreBand == model.ScoreBandTopPriority && job.TitleBucket == model.TitleBucketInclude {
		j := job
		alertJob = &j
	}

	return candidate, alertJob, nil
}

// runAnalyzer implements phase 7: it runs the fit analyzer over every
// candidate with bounded concurrency, persisting each non-nil result, and
// returns a canonicalJobID -> FitAnalysis map for phase 8 to consult.
func (o *Orchestrator) runAnalyzer(ctx context.Context, candidates []analysisCandidate, run *model.RunLog) map[int64]*model.FitAnalysis {
	analyses := make(map[int64]*model.FitAnalysis, len(candidates))
	if len(candidates) == 0 {
		return analyses
	}

	results, errs := fetcher.BatchFetch(ctx, candidates, fetcher.BatchOptions{
		Concurrency: o.analyzerCon,
	}, func(actx context.Context, c analysisCandidate) (*model.FitAnalysis, error) {
		return o.analyzer.Analyze(actx, c.Job, c.DescriptionHTML, o.resume)
	})

	for i, analysis := range results {
		if errs[i] != nil {
			run.Errors = append(run.Errors, eris.Wrapf(errs[i], "pipeline: analyze job %d", candidates[i].Job.ID).Error())
			continue
		}
		if analysis == nil {
			continue
		}
		analysis.CanonicalJobID = candidates[i].Job.ID
		if err := o.store.UpsertFitAnalysis(ctx, *analysis); err != nil {
			run.Errors = append(run.Errors, eris.Wrapf(err, "pipeline: persist fit analysis for job %d", candidates[i].Job.ID).Error())
			continue
		}
		analyses[candidates[i].Job.ID] = analysis
	}

	return analyses
}

// dispatchAlerts implements phase 8. A failed send is queued for later
// retry rather than dropped.
func (o *Orchestrator) dispatchAlerts(ctx context.Context, jobs []model.CanonicalJob, analyses map[int64]*model.FitAnalysis, dryRun bool, run *model.RunLog) int {
	n := o.notifier
	if dryRun {
		n = notifier.NewNullNotifier()
	}

	sent := 0
	for _, job := range jobs {
		if err := n.SendAlert(ctx, job, analyses[job.ID]); err != nil {
			run.Errors = append(run.Errors, eris.Wrapf(err, "pipeline: send alert for job %d", job.ID).Error())
			if _, qerr := o.store.EnqueueRetry(ctx, model.RetryQueueItem{
				BotType:     "jobs",
				Message:     fmt.Sprintf("alert for canonical job %d (%s at %s)", job.ID, job.Title, job.Company),
				NextRetryAt: time.Now().Add(5 * time.Minute),
			}); qerr != nil {
				o.logger.Warn("pipeline: enqueue alert retry", zap.Error(qerr))
			}
			continue
		}
		sent++
	}
	return sent
}

// commitSourceMetrics implements phase 9: one additive upsert per source
// touched during the run.
func (o *Orchestrator) commitSourceMetrics(ctx context.Context, agg map[string]*sourceAgg, run *model.RunLog) {
	today := time.Now().Format("2006-01-02")

	for source, a := range agg {
		var avgMs, successRate float64
		if len(a.responseTimesMs) > 0 {
			var sum float64
			for _, ms := range a.responseTimesMs {
				sum += ms
			}
			avgMs = sum / float64(len(a.responseTimesMs))
		}
		if a.totalAttempts > 0 {
			successRate = float64(a.successAttempts) / float64(a.totalAttempts)
		}

		metric := model.SourceMetric{
			Source:            source,
			Date:              today,
			JobsFound:         a.jobsFound,
			JobsNew:           a.jobsNew,
			JobsDuplicate:     a.jobsDuplicate,
			ParseFailures:     a.parseFailures,
			RateLimitHits:     a.rateLimitHits,
			ResponseTimeAvgMs: avgMs,
			SuccessRate:       successRate,
		}
		if err := o.store.UpsertSourceMetric(ctx, metric); err != nil {
			run.Errors = append(run.Errors, eris.Wrapf(err, "pipeline: upsert source metric for %s", source).Error())
		}
	}
}
