package analyzer

import (
	"context"

	"github.com/rotisserie/eris"
)

// Fallback wraps a single-key secondary provider invoked once, without
// retries, after the primary key pool exhausts its retry budget.
type Fallback struct {
	provider StreamProvider
	apiKey   string
}

// NewFallback creates a Fallback around provider using apiKey for every call.
func NewFallback(provider StreamProvider, apiKey string) *Fallback {
	if provider == nil {
		return nil
	}
	return &Fallback{provider: provider, apiKey: apiKey}
}

// Stream makes one non-retrying attempt against the fallback provider.
func (f *Fallback) Stream(ctx context.Context, systemPrompt, userPrompt string) (string, int64, int64, error) {
	if f == nil || f.provider == nil {
		return "", 0, 0, eris.New("analyzer: no fallback provider configured")
	}
	return f.provider.Stream(ctx, f.apiKey, systemPrompt, userPrompt)
}
