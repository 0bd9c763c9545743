// Package analyzer scores how well a canonical job fits a resume, using a
// pooled OpenAI-compatible streaming LLM backend with a single-key fallback.
package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/resilience"
)

// Analyzer scores how well a CanonicalJob fits a resume.
type Analyzer interface {
	// Analyze returns (nil, nil) on graceful total failure so the pipeline
	// proceeds without an analysis; it returns (nil, err) only for
	// programmer/config errors raised before any network attempt.
	Analyze(ctx context.Context, job model.CanonicalJob, descriptionHTML, resume string) (*model.FitAnalysis, error)
}

// DefaultAnalyzer retries against a rotating primary key pool, then falls
// back to a single non-retried secondary provider.
type DefaultAnalyzer struct {
	pool          *KeyPool
	primary       StreamProvider
	primaryModel  string
	fallback      *Fallback
	fallbackModel string

	// retryDelayOverride replaces backoffFor in tests so retry sequences
	// don't actually sleep; nil in production use.
	retryDelayOverride func(errorClass, int) int64
}

// NewDefaultAnalyzer wires pool/primary as the retried path and fallback
// (nil if not configured) as the one-shot secondary attempt.
func NewDefaultAnalyzer(pool *KeyPool, primary StreamProvider, primaryModel string, fallback *Fallback, fallbackModel string) *DefaultAnalyzer {
	return &DefaultAnalyzer{
		pool:          pool,
		primary:       primary,
		primaryModel:  primaryModel,
		fallback:      fallback,
		fallbackModel: fallbackModel,
	}
}

const maxAnalyzerAttempts = 4

// Analyze implements Analyzer.
func (a *DefaultAnalyzer) Analyze(ctx context.Context, job model.CanonicalJob, descriptionHTML, resume string) (*model.FitAnalysis, error) {
	if a.pool == nil || a.pool.Len() == 0 {
		return nil, eris.New("analyzer: no primary keys configured")
	}

	system, user := BuildPrompt(job, descriptionHTML, resume)

	key, release, err := a.pool.Acquire(ctx)
	if err != nil {
		zap.L().Warn("analyzer: acquire key failed, skipping analysis",
			zap.Int64("canonical_job_id", job.ID), zap.Error(err))
		return nil, nil
	}

	text, promptTokens, completionTokens, err := a.streamWithRetry(ctx, a.primary, key, system, user)
	release()

	provider := "openai_compatible"
	modelUsed := a.primaryModel

	if err != nil {
		zap.L().Warn("analyzer: primary provider exhausted, trying fallback",
			zap.Int64("canonical_job_id", job.ID), zap.Error(err))

		text, promptTokens, completionTokens, err = a.fallback.Stream(ctx, system, user)
		if err != nil {
			zap.L().Warn("analyzer: fallback provider failed",
				zap.Int64("canonical_job_id", job.ID), zap.Error(err))
			return nil, nil
		}
		modelUsed = a.fallbackModel
	}

	analysis, _ := Parse(text)
	if analysis == nil {
		return nil, nil
	}

	analysis.CanonicalJobID = job.ID
	analysis.Provider = provider
	analysis.ModelUsed = modelUsed
	analysis.PromptTokens = promptTokens
	analysis.CompletionTokens = completionTokens

	return analysis, nil
}

// streamWithRetry implements the split backoff policy: HTTP 429/502/503
// wait longer than bare network errors, on the theory that they reflect
// real contention rather than a transient socket blip. MaxAttempts=4 means
// three retries after the first try.
func (a *DefaultAnalyzer) streamWithRetry(ctx context.Context, provider StreamProvider, key, system, user string) (string, int64, int64, error) {
	var lastErr error
	for attempt := 0; attempt < maxAnalyzerAttempts; attempt++ {
		text, pt, ct, err := provider.Stream(ctx, key, system, user)
		if err == nil {
			return text, pt, ct, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", 0, 0, lastErr
		}

		class := classifyAnalyzerError(err)
		if class == classNonRetryable {
			return "", 0, 0, lastErr
		}
		if attempt >= maxAnalyzerAttempts-1 {
			break
		}

		var delayMs int64
		if a.retryDelayOverride != nil {
			delayMs = a.retryDelayOverride(class, attempt)
		} else {
			delayMs = backoffFor(class, attempt).Milliseconds()
		}
		delay := time.Duration(delayMs) * time.Millisecond
		zap.L().Warn("analyzer: retrying after transient error",
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", 0, 0, lastErr
		case <-timer.C:
		}
	}
	return "", 0, 0, lastErr
}

type errorClass int

const (
	classNonRetryable errorClass = iota
	classRateOrServer
	classNetwork
)

func classifyAnalyzerError(err error) errorClass {
	var te *resilience.TransientError
	if errors.As(err, &te) && isRateOrServerStatus(te.StatusCode) {
		return classRateOrServer
	}
	if resilience.IsTransient(err) {
		return classNetwork
	}
	return classNonRetryable
}

func isRateOrServerStatus(code int) bool {
	switch code {
	case 429, 502, 503:
		return true
	default:
		return false
	}
}

func backoffFor(class errorClass, attempt int) time.Duration {
	switch class {
	case classRateOrServer:
		return time.Duration(2000*(attempt+1)) * time.Millisecond
	case classNetwork:
		return time.Duration(1000*(attempt+1)) * time.Millisecond
	default:
		return 0
	}
}
