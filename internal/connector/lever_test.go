package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeverConnector_Fetch(t *testing.T) {
	f := newFakeFetcher().withResponse(
		"https://api.lever.co/v0/postings/acme",
		[]byte(`[{"id":"abc123","text":"Data Engineer","hostedUrl":"https://jobs.lever.co/acme/abc123","descriptionPlain":"desc","createdAt":1750000000000,"categories":{"location":"Toronto, ON"}}]`),
		200, nil,
	)
	c := NewLeverConnector(f)
	def := SourceDef{EndpointTemplate: "https://api.lever.co/v0/postings/{slug}"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "abc123", result.Jobs[0].SourceJobID)
	assert.Equal(t, "Toronto, ON", result.Jobs[0].LocationRaw)
	assert.NotNil(t, result.Jobs[0].PostedAt)
}

func TestLeverConnector_RateLimited(t *testing.T) {
	f := newFakeFetcher().withResponse("https://api.lever.co/v0/postings/acme", nil, 429, assertErr("rate limited"))
	c := NewLeverConnector(f)
	def := SourceDef{EndpointTemplate: "https://api.lever.co/v0/postings/{slug}"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	assert.True(t, result.RateLimited)
	assert.False(t, result.Success)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
