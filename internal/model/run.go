package model

import "time"

// RunType identifies the kind of pipeline invocation.
type RunType string

const (
	RunTypeIngest   RunType = "ingest"
	RunTypeBackfill RunType = "backfill"
	RunTypeCatchup  RunType = "catchup"
	RunTypeReplay   RunType = "replay"
)

// RunStatus is a closed enum for a RunLog's terminal state.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunLog records one pipeline invocation.
type RunLog struct {
	ID             string    `json:"id" db:"id"`
	Type           RunType   `json:"type" db:"type"`
	DryRun         bool      `json:"dry_run" db:"dry_run"`
	Status         RunStatus `json:"status" db:"status"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	JobsFound      int       `json:"jobs_found" db:"jobs_found"`
	JobsNew        int       `json:"jobs_new" db:"jobs_new"`
	JobsDuplicate  int       `json:"jobs_duplicate" db:"jobs_duplicate"`
	JobsRejected   int       `json:"jobs_rejected" db:"jobs_rejected"`
	AlertsSent     int       `json:"alerts_sent" db:"alerts_sent"`
	ParseFailures  int       `json:"parse_failures" db:"parse_failures"`
	Errors         []string  `json:"errors,omitempty" db:"errors"`
}

// SourceMetric is a daily additive aggregate for one connector source.
type SourceMetric struct {
	Source             string  `json:"source" db:"source"`
	Date               string  `json:"date" db:"date"` // YYYY-MM-DD
	JobsFound          int     `json:"jobs_found" db:"jobs_found"`
	JobsNew            int     `json:"jobs_new" db:"jobs_new"`
	JobsDuplicate      int     `json:"jobs_duplicate" db:"jobs_duplicate"`
	ParseFailures      int     `json:"parse_failures" db:"parse_failures"`
	RateLimitHits      int     `json:"rate_limit_hits" db:"rate_limit_hits"`
	ResponseTimeAvgMs  float64 `json:"response_time_avg_ms" db:"response_time_avg_ms"`
	SuccessRate        float64 `json:"success_rate" db:"success_rate"`
}

// RetryQueueItem is a notification that failed to send and awaits redelivery.
type RetryQueueItem struct {
	ID          int64     `json:"id" db:"id"`
	BotType     string    `json:"bot_type" db:"bot_type"`
	Message     string    `json:"message" db:"message"`
	RetryCount  int       `json:"retry_count" db:"retry_count"`
	NextRetryAt time.Time `json:"next_retry_at" db:"next_retry_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// DigestKind identifies which rollup a Notifier.SendDigest call represents.
type DigestKind string

const (
	DigestKindDaily  DigestKind = "daily"
	DigestKindWeekly DigestKind = "weekly"
)
