package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/model"
)

func hours(h float64) *float64 { return &h }

func testConfig() Config {
	return NewConfig(&config.Config{
		Scoring: config.ScoringConfig{
			FreshnessBrackets: []config.FreshnessBracket{
				{MaxHours: nil, Points: 0},
				{MaxHours: hours(24), Points: 30},
				{MaxHours: hours(72), Points: 15},
			},
			LowConfidenceCap: 10,
			Bands: []config.BandThreshold{
				{Name: "topPriority", MinScore: 70},
				{Name: "goodMatch", MinScore: 40},
				{Name: "worthALook", MinScore: 0},
			},
		},
		Locations: map[string]config.LocationTier{
			"tier1": {Label: "tier1", Points: 25},
		},
		Modes: map[string]config.ModeConfig{
			"remote": {Points: 20},
			"hybrid": {Points: 15},
			"onsite": {Points: 5},
		},
	})
}

func TestScore_FreshBracketWins(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	posted := now.Add(-2 * time.Hour)
	job := model.CanonicalJob{PostedAt: &posted, PostedAtConfidence: model.ConfidenceHigh, LocationTier: "tier1", WorkMode: model.WorkModeRemote}

	result := Score(job, cfg, now)
	assert.Equal(t, 30.0, result.Freshness)
	assert.Equal(t, 25.0, result.Location)
	assert.Equal(t, 20.0, result.Mode)
	assert.Equal(t, 75.0, result.Total)
	assert.Equal(t, model.ScoreBandTopPriority, result.Band)
}

func TestScore_OlderBracket(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	posted := now.Add(-48 * time.Hour)
	job := model.CanonicalJob{PostedAt: &posted, PostedAtConfidence: model.ConfidenceHigh}

	result := Score(job, cfg, now)
	assert.Equal(t, 15.0, result.Freshness)
}

func TestScore_NoPostedDateFallsIntoCatchAll(t *testing.T) {
	cfg := testConfig()
	result := Score(model.CanonicalJob{PostedAtConfidence: model.ConfidenceLow}, cfg, time.Now())
	assert.Equal(t, 0.0, result.Freshness)
}

func TestScore_LowConfidenceCapsFreshness(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	posted := now.Add(-1 * time.Hour)
	job := model.CanonicalJob{PostedAt: &posted, PostedAtConfidence: model.ConfidenceLow}

	result := Score(job, cfg, now)
	assert.Equal(t, 10.0, result.Freshness)
}

func TestScore_UnknownLocationAndModeScoreZero(t *testing.T) {
	cfg := testConfig()
	result := Score(model.CanonicalJob{LocationTier: "nope", WorkMode: model.WorkModeUnknown}, cfg, time.Now())
	assert.Equal(t, 0.0, result.Location)
	assert.Equal(t, 0.0, result.Mode)
}

func TestScore_BandDefaultsToLowestWhenBelowAllThresholds(t *testing.T) {
	cfg := testConfig()
	result := Score(model.CanonicalJob{}, cfg, time.Now())
	assert.Equal(t, model.ScoreBandWorthALook, result.Band)
}
