// Package connector implements per-ATS-platform job listing retrieval.
package connector

import (
	"context"
	"time"

	"github.com/jobintel/pipeline/internal/model"
)

// CompanySeed identifies a company whose board a connector should fetch from.
type CompanySeed struct {
	Name string
	Slug string
}

// SourceDef configures one connector invocation: the board URL/endpoint
// template to use, search queries, and a timeout.
type SourceDef struct {
	Type             string
	EndpointTemplate string
	URLTemplate      string
	Queries          []string
	TimeoutMs        int
}

// ConnectorResult always returns, even on partial failure: a failed fetch
// sets Success=false and Error instead of returning a non-nil error, which
// is reserved for programmer/config mistakes.
type ConnectorResult struct {
	Source       string
	Company      string
	Jobs         []model.RawJob
	Success      bool
	Error        string
	RateLimited  bool
	ResponseTime time.Duration
}

// Connector fetches raw job postings for one company from one ATS platform.
type Connector interface {
	// Fetch retrieves job postings for company from the board described by def.
	Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error)

	// ValidateConfig fails fast when def is missing fields this connector requires.
	ValidateConfig(def SourceDef) error

	// Name returns the connector's source name, used for RawJob.Source and metrics.
	Name() string
}
