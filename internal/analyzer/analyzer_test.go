package analyzer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/resilience"
)

type fakeStreamProvider struct {
	calls     int32
	responses []fakeStreamResponse
}

type fakeStreamResponse struct {
	text string
	pt   int64
	ct   int64
	err  error
}

func (f *fakeStreamProvider) Stream(ctx context.Context, apiKey, system, user string) (string, int64, int64, error) {
	n := atomic.AddInt32(&f.calls, 1) - 1
	if int(n) >= len(f.responses) {
		r := f.responses[len(f.responses)-1]
		return r.text, r.pt, r.ct, r.err
	}
	r := f.responses[n]
	return r.text, r.pt, r.ct, r.err
}

const validJSON = `{"fitScore":75,"verdict":"strong","summary":"Good fit."}`

func testJob() model.CanonicalJob {
	return model.CanonicalJob{ID: 42, Title: "Backend Engineer", Company: "Acme"}
}

func TestAnalyze_SuccessFirstTry(t *testing.T) {
	pool := NewKeyPool([]string{"k1"})
	primary := &fakeStreamProvider{responses: []fakeStreamResponse{{text: validJSON, pt: 100, ct: 20}}}
	a := NewDefaultAnalyzer(pool, primary, "model-a", nil, "")

	analysis, err := a.Analyze(context.Background(), testJob(), "<p>desc</p>", "resume")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, int64(42), analysis.CanonicalJobID)
	assert.Equal(t, "model-a", analysis.ModelUsed)
	assert.Equal(t, int64(100), analysis.PromptTokens)
	assert.Equal(t, int64(20), analysis.CompletionTokens)
	assert.Equal(t, 75, analysis.FitScore)
	assert.Equal(t, int32(1), primary.calls)
}

func TestAnalyze_RetriesTransientThenSucceeds(t *testing.T) {
	pool := NewKeyPool([]string{"k1"})
	transient := resilience.NewTransientError(errors.New("server busy"), 503)
	primary := &fakeStreamProvider{responses: []fakeStreamResponse{
		{err: transient},
		{text: validJSON},
	}}
	a := NewDefaultAnalyzer(pool, primary, "model-a", nil, "")
	a.retryDelayOverride = func(errorClass, int) int64 { return 0 }

	analysis, err := a.Analyze(context.Background(), testJob(), "desc", "resume")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, int32(2), primary.calls)
}

func TestAnalyze_ExhaustsPrimaryFallsBackAndSucceeds(t *testing.T) {
	pool := NewKeyPool([]string{"k1"})
	transient := resilience.NewTransientError(errors.New("rate limited"), 429)
	primary := &fakeStreamProvider{responses: []fakeStreamResponse{{err: transient}}}
	fallbackProvider := &fakeStreamProvider{responses: []fakeStreamResponse{{text: validJSON}}}
	fb := NewFallback(fallbackProvider, "fallback-key")
	a := NewDefaultAnalyzer(pool, primary, "model-a", fb, "model-b")
	a.retryDelayOverride = func(errorClass, int) int64 { return 0 }

	analysis, err := a.Analyze(context.Background(), testJob(), "desc", "resume")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, "model-b", analysis.ModelUsed)
	assert.Equal(t, int32(maxAnalyzerAttempts), primary.calls)
	assert.Equal(t, int32(1), fallbackProvider.calls)
}

func TestAnalyze_FallbackAlsoFailsReturnsNilNil(t *testing.T) {
	pool := NewKeyPool([]string{"k1"})
	primary := &fakeStreamProvider{responses: []fakeStreamResponse{{err: errors.New("nope")}}}
	fallbackProvider := &fakeStreamProvider{responses: []fakeStreamResponse{{err: errors.New("also nope")}}}
	fb := NewFallback(fallbackProvider, "fallback-key")
	a := NewDefaultAnalyzer(pool, primary, "model-a", fb, "model-b")

	analysis, err := a.Analyze(context.Background(), testJob(), "desc", "resume")
	require.NoError(t, err)
	assert.Nil(t, analysis)
}

func TestAnalyze_NoFallbackConfiguredReturnsNilNil(t *testing.T) {
	pool := NewKeyPool([]string{"k1"})
	primary := &fakeStreamProvider{responses: []fakeStreamResponse{{err: errors.New("nope")}}}
	a := NewDefaultAnalyzer(pool, primary, "model-a", nil, "")

	analysis, err := a.Analyze(context.Background(), testJob(), "desc", "resume")
	require.NoError(t, err)
	assert.Nil(t, analysis)
}

func TestAnalyze_EmptyPoolReturnsError(t *testing.T) {
	a := NewDefaultAnalyzer(NewKeyPool(nil), &fakeStreamProvider{}, "model-a", nil, "")
	_, err := a.Analyze(context.Background(), testJob(), "desc", "resume")
	assert.Error(t, err)
}

func TestAnalyze_NonRetryableErrorSkipsRetryAndGoesToFallback(t *testing.T) {
	pool := NewKeyPool([]string{"k1"})
	primary := &fakeStreamProvider{responses: []fakeStreamResponse{{err: errors.New("invalid api key")}}}
	fallbackProvider := &fakeStreamProvider{responses: []fakeStreamResponse{{text: validJSON}}}
	fb := NewFallback(fallbackProvider, "fallback-key")
	a := NewDefaultAnalyzer(pool, primary, "model-a", fb, "model-b")

	analysis, err := a.Analyze(context.Background(), testJob(), "desc", "resume")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, int32(1), primary.calls)
}

func TestClassifyAnalyzerError(t *testing.T) {
	assert.Equal(t, classRateOrServer, classifyAnalyzerError(resilience.NewTransientError(errors.New("x"), 503)))
	assert.Equal(t, classNetwork, classifyAnalyzerError(resilience.NewTransientError(errors.New("x"), 0)))
	assert.Equal(t, classNonRetryable, classifyAnalyzerError(errors.New("unauthorized")))
}
