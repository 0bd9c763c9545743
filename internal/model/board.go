package model

import "time"

// BoardStatus is a closed enum for a DiscoveredBoard's lifecycle.
type BoardStatus string

const (
	BoardStatusActive   BoardStatus = "active"
	BoardStatusInactive BoardStatus = "inactive"
)

// DiscoveredBoard is a registry entry for an ATS board found by discovery.
type DiscoveredBoard struct {
	ID                      int64       `json:"id" db:"id"`
	Platform                string      `json:"platform" db:"platform"`
	BoardURL                string      `json:"board_url" db:"board_url"`
	BoardSlug               string      `json:"board_slug" db:"board_slug"`
	Confidence              float64     `json:"confidence" db:"confidence"`
	Status                  BoardStatus `json:"status" db:"status"`
	LastSeenAt              time.Time   `json:"last_seen_at" db:"last_seen_at"`
	LastSuccessAt           *time.Time  `json:"last_success_at,omitempty" db:"last_success_at"`
	ConsecutiveZeroYieldRuns int        `json:"consecutive_zero_yield_runs" db:"consecutive_zero_yield_runs"`
	CreatedAt               time.Time   `json:"created_at" db:"created_at"`
}

// AlternateURL is a secondary URL for a canonical job surfaced by another source.
type AlternateURL struct {
	ID             int64     `json:"id" db:"id"`
	CanonicalJobID int64     `json:"canonical_job_id" db:"canonical_job_id"`
	Source         string    `json:"source" db:"source"`
	URL            string    `json:"url" db:"url"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// DedupMethod is a closed enum naming which dedup pass matched.
type DedupMethod string

const (
	DedupMethodURLHash            DedupMethod = "url_hash"
	DedupMethodFuzzyKey           DedupMethod = "fuzzy_key"
	DedupMethodContentFingerprint DedupMethod = "content_fingerprint"
)

// JobDuplicate records a dedup edge between a new job and an existing one.
type JobDuplicate struct {
	ID              int64       `json:"id" db:"id"`
	NewRawJobID     int64       `json:"new_raw_job_id" db:"new_raw_job_id"`
	ExistingJobID   int64       `json:"existing_job_id" db:"existing_job_id"`
	Method          DedupMethod `json:"method" db:"method"`
	Similarity      float64     `json:"similarity" db:"similarity"`
	IsPotential     bool        `json:"is_potential" db:"is_potential"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}
