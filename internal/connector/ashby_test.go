package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAshbyConnector_Fetch(t *testing.T) {
	f := newFakeFetcher().withResponse(
		"https://jobs.ashbyhq.com/api/non-user-graphql",
		[]byte(`{"data":{"jobBoard":{"jobPostings":[{"id":"j1","title":"SRE","locationName":"Remote - Canada","employmentType":"FullTime","descriptionHtml":"<p>desc</p>","publishedAt":"2026-07-01T00:00:00Z"}]}}}`),
		200, nil,
	)
	c := NewAshbyConnector(f)
	def := SourceDef{EndpointTemplate: "https://jobs.ashbyhq.com/api/non-user-graphql"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "j1", result.Jobs[0].SourceJobID)
	assert.Contains(t, result.Jobs[0].URL, "acme/j1")
}

func TestAshbyConnector_ValidateConfig(t *testing.T) {
	c := NewAshbyConnector(nil)
	assert.Error(t, c.ValidateConfig(SourceDef{}))
}
