// Package store defines the persistence contract for the job pipeline and
// provides SQLite (default) and Postgres (optional) implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jobintel/pipeline/internal/model"
)

// ErrNotFound is wrapped into the error returned by lookups and updates
// that target a single row by id, so callers (notably httpapi) can
// distinguish "no such row" from a transport/query failure with errors.Is.
var ErrNotFound = errors.New("store: not found")

// JobFilter specifies criteria for listing canonical jobs, used by the HTTP API.
type JobFilter struct {
	Band      model.ScoreBand
	Bucket    model.TitleBucket
	Status    model.JobStatus
	Since     *time.Time
	MinScore  float64
	Tiers     []string
	Limit     int
	Offset    int
}

// SourceAnalytic is one row of the by-source aggregation over N days.
type SourceAnalytic struct {
	Source        string  `json:"source"`
	JobsFound     int     `json:"jobs_found"`
	JobsNew       int     `json:"jobs_new"`
	JobsDuplicate int     `json:"jobs_duplicate"`
	SuccessRate   float64 `json:"success_rate"`
}

// WeeklySummary is the weekly digest's aggregate counts.
type WeeklySummary struct {
	TotalJobs      int `json:"total_jobs"`
	TopPriority    int `json:"top_priority"`
	GoodMatch      int `json:"good_match"`
	Applied        int `json:"applied"`
	AlertsSent     int `json:"alerts_sent"`
}

// ArchiveResult reports the outcome of an archive-and-purge sweep.
type ArchiveResult struct {
	Archived int
	Purged   int
}

// Store is the full persistence contract the orchestrator, scheduler, and
// HTTP API require. Implementations must support transactions, unique
// constraints, and concurrent reads with a single writer.
type Store interface {
	// Run log
	CreateRunLog(ctx context.Context, run model.RunLog) (*model.RunLog, error)
	FinishRunLog(ctx context.Context, run model.RunLog) error
	GetRunLog(ctx context.Context, id string) (*model.RunLog, error)
	LastFinishedRunLog(ctx context.Context, runType model.RunType) (*model.RunLog, error)

	// Raw jobs
	InsertRawJob(ctx context.Context, job model.RawJob) (int64, error)
	RawJobsByDateSource(ctx context.Context, date, source string) ([]model.RawJob, error)

	// Canonical jobs
	InsertCanonicalJob(ctx context.Context, job model.CanonicalJob) (int64, error)
	GetCanonicalJobByURLHash(ctx context.Context, urlHash string) (*model.CanonicalJob, error)
	CanonicalJobsByContentFingerprint(ctx context.Context, fingerprint string) ([]model.CanonicalJob, error)
	GetCanonicalJob(ctx context.Context, id int64) (*model.CanonicalJob, error)
	ListCanonicalJobs(ctx context.Context, filter JobFilter) ([]model.CanonicalJob, error)
	UpdateCanonicalJobScore(ctx context.Context, id int64, score, freshness, location, mode float64, band model.ScoreBand) error
	UpdateCanonicalJobStatus(ctx context.Context, id int64, status model.JobStatus) error
	RecentCanonicalJobs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error)
	ActiveJobURLs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error)

	// Dedup
	InsertJobDuplicate(ctx context.Context, dup model.JobDuplicate) error

	// Discovered boards
	UpsertBoard(ctx context.Context, board model.DiscoveredBoard) error
	ActiveBoardsByPlatform(ctx context.Context, platform string) ([]model.DiscoveredBoard, error)
	UpdateBoardPollState(ctx context.Context, boardID int64, success bool) error

	// Source metrics
	UpsertSourceMetric(ctx context.Context, metric model.SourceMetric) error

	// Connector checkpoints
	RecordConnectorCheckpoint(ctx context.Context, source, company string, success bool) error
	ConsecutiveFailures(ctx context.Context, source, company string) (int, error)

	// Fit analysis
	UpsertFitAnalysis(ctx context.Context, analysis model.FitAnalysis) error
	GetFitAnalysis(ctx context.Context, canonicalJobID int64) (*model.FitAnalysis, error)

	// Alternate URLs
	InsertAlternateURL(ctx context.Context, alt model.AlternateURL) error
	ListAlternateURLs(ctx context.Context, canonicalJobID int64) ([]model.AlternateURL, error)

	// Retry queue
	EnqueueRetry(ctx context.Context, item model.RetryQueueItem) (int64, error)
	DueRetries(ctx context.Context, now time.Time) ([]model.RetryQueueItem, error)
	IncrementRetry(ctx context.Context, id int64, nextRetryAt time.Time) error
	RemoveRetry(ctx context.Context, id int64) error

	// Analytics
	SourceAnalytics(ctx context.Context, days int) ([]SourceAnalytic, error)
	WeeklySummary(ctx context.Context, since time.Time) (WeeklySummary, error)

	// Maintenance
	ArchiveOldJobs(ctx context.Context, archiveAfterDays, purgeAfterDays int) (ArchiveResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
