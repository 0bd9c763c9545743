package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreenhouseConnector_Fetch(t *testing.T) {
	f := newFakeFetcher().withResponse(
		"https://boards-api.greenhouse.io/v1/boards/acme/jobs",
		[]byte(`{"jobs":[{"id":123,"title":"Backend Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/123","content":"desc","updated_at":"2026-07-01T12:00:00Z","location":{"name":"Remote"}}]}`),
		200, nil,
	)
	c := NewGreenhouseConnector(f)
	def := SourceDef{EndpointTemplate: "https://boards-api.greenhouse.io/v1/boards/{slug}/jobs"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "123", result.Jobs[0].SourceJobID)
	assert.Equal(t, "Backend Engineer", result.Jobs[0].Title)
	assert.Equal(t, "Remote", result.Jobs[0].LocationRaw)
	assert.NotNil(t, result.Jobs[0].PostedAt)
}

func TestGreenhouseConnector_ValidateConfig(t *testing.T) {
	c := NewGreenhouseConnector(nil)
	assert.Error(t, c.ValidateConfig(SourceDef{}))
	assert.NoError(t, c.ValidateConfig(SourceDef{EndpointTemplate: "https://x/{slug}"}))
}

func TestGreenhouseConnector_FetchErrorSetsFailure(t *testing.T) {
	f := newFakeFetcher()
	c := NewGreenhouseConnector(f)
	def := SourceDef{EndpointTemplate: "https://boards-api.greenhouse.io/v1/boards/{slug}/jobs"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
