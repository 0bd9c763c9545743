package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICIMSConnector_Fetch(t *testing.T) {
	html := `<html><body>
		<a class="iCIMS_Anchor" href="/jobs/1">Support Engineer</a>
		<span class="iCIMS_JobHeaderLocationText">Remote</span>
	</body></html>`
	f := newFakeFetcher().withResponse("https://careers-acme.icims.com/jobs/search", []byte(html), 200, nil)
	c := NewICIMSConnector(f)
	def := SourceDef{URLTemplate: "https://careers-{slug}.icims.com/jobs/search"}

	result, err := c.Fetch(context.Background(), CompanySeed{Name: "Acme", Slug: "acme"}, def)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "Support Engineer", result.Jobs[0].Title)
}

func TestICIMSConnector_ValidateConfig(t *testing.T) {
	c := NewICIMSConnector(nil)
	assert.Error(t, c.ValidateConfig(SourceDef{}))
	assert.NoError(t, c.ValidateConfig(SourceDef{URLTemplate: "https://careers-{slug}.icims.com/jobs/search"}))
}
