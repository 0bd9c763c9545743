package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmartRecruitersConnector_FetchAPI(t *testing.T) {
	f := newFakeFetcher().withResponse(
		"https://api.smartrecruiters.com/v1/companies/acme/postings",
		[]byte(`{"content":[{"id":"p1","name":"Analyst","releasedDate":"2026-07-01T00:00:00Z","location":{"city":"Toronto","region":"ON","country":"CA"}}]}`),
		200, nil,
	)
	c := NewSmartRecruitersConnector(f)
	def := SourceDef{EndpointTemplate: "https://api.smartrecruiters.com/v1/companies/{slug}/postings"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "Toronto, ON, CA", result.Jobs[0].LocationRaw)
}

func TestSmartRecruitersConnector_FallsBackToHTML(t *testing.T) {
	html := `<div class="postings-list"><a href="/acme/jobs/1">Analyst</a><span class="postings-location">Remote</span></div>`
	f := newFakeFetcher().withResponse("https://jobs.smartrecruiters.com/acme", []byte(html), 200, nil)
	c := NewSmartRecruitersConnector(f)
	def := SourceDef{URLTemplate: "https://jobs.smartrecruiters.com/{slug}"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Jobs, 1)
}

func TestSmartRecruitersConnector_ValidateConfig(t *testing.T) {
	c := NewSmartRecruitersConnector(nil)
	assert.Error(t, c.ValidateConfig(SourceDef{}))
	assert.NoError(t, c.ValidateConfig(SourceDef{URLTemplate: "https://jobs.smartrecruiters.com/{slug}"}))
}
