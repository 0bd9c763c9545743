// Package score computes a CanonicalJob's freshness/location/mode score
// and assigns it to a treatment band.
package score

import (
	"sort"
	"time"

	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/model"
)

// Config is the compiled, ready-to-use form of config.Config's scoring
// inputs: freshness brackets sorted ascending (catch-all last), bands
// sorted descending by threshold.
type Config struct {
	freshnessBrackets []config.FreshnessBracket
	lowConfidenceCap  float64
	bands             []config.BandThreshold
	locationPoints    map[string]float64
	modePoints        map[model.WorkMode]float64
}

// NewConfig compiles cfg into a Config ready for repeated Score calls.
func NewConfig(cfg *config.Config) Config {
	brackets := make([]config.FreshnessBracket, len(cfg.Scoring.FreshnessBrackets))
	copy(brackets, cfg.Scoring.FreshnessBrackets)
	sort.SliceStable(brackets, func(i, j int) bool {
		if brackets[i].MaxHours == nil {
			return false
		}
		if brackets[j].MaxHours == nil {
			return true
		}
		return *brackets[i].MaxHours < *brackets[j].MaxHours
	})

	bands := make([]config.BandThreshold, len(cfg.Scoring.Bands))
	copy(bands, cfg.Scoring.Bands)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinScore > bands[j].MinScore })

	locationPoints := make(map[string]float64, len(cfg.Locations))
	for _, tier := range cfg.Locations {
		locationPoints[tier.Label] = tier.Points
	}

	modePoints := make(map[model.WorkMode]float64, len(cfg.Modes))
	for key, m := range cfg.Modes {
		if mode, ok := model.ParseWorkMode(key); ok {
			modePoints[mode] = m.Points
		}
	}

	return Config{
		freshnessBrackets: brackets,
		lowConfidenceCap:  cfg.Scoring.LowConfidenceCap,
		bands:             bands,
		locationPoints:    locationPoints,
		modePoints:        modePoints,
	}
}

// Result is the breakdown behind a CanonicalJob's total score.
type Result struct {
	Freshness float64
	Location  float64
	Mode      float64
	Total     float64
	Band      model.ScoreBand
}

// Score evaluates job against cfg as of now.
func Score(job model.CanonicalJob, cfg Config, now time.Time) Result {
	freshness := freshnessPoints(job, cfg, now)
	location := cfg.locationPoints[job.LocationTier]
	mode := cfg.modePoints[job.WorkMode]

	total := freshness + location + mode

	return Result{
		Freshness: freshness,
		Location:  location,
		Mode:      mode,
		Total:     total,
		Band:      pickBand(total, cfg.bands),
	}
}

func freshnessPoints(job model.CanonicalJob, cfg Config, now time.Time) float64 {
	var points float64
	ageHours := float64(hugeAge)
	if job.PostedAt != nil {
		ageHours = now.Sub(*job.PostedAt).Hours()
	}

	for _, b := range cfg.freshnessBrackets {
		if b.MaxHours == nil || ageHours <= *b.MaxHours {
			points = b.Points
			break
		}
	}

	if job.PostedAtConfidence == model.ConfidenceLow {
		points = min(points, cfg.lowConfidenceCap)
	}

	return points
}

// hugeAge stands in for "no posted date known", always sorting into the
// catch-all freshness bracket.
const hugeAge = 1 << 20

func pickBand(total float64, bands []config.BandThreshold) model.ScoreBand {
	for _, b := range bands {
		if total >= b.MinScore {
			if band, ok := model.ParseScoreBand(b.Name); ok {
				return band
			}
		}
	}
	return model.ScoreBandWorthALook
}
