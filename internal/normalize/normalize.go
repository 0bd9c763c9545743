// Package normalize turns a RawJob capture into a CanonicalJob: classified
// title bucket, resolved location tier, detected work mode, normalized
// company name, and content-addressed hashes used by dedup.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/model"
)

// Config is the compiled, ready-to-use form of config.Config's normalize
// inputs: location tiers pre-sorted by points, timezone pre-loaded.
type Config struct {
	locationTiers []locationTier
	titleFilters  config.TitleFiltersConfig
	modes         map[string]config.ModeConfig
	loc           *time.Location
}

type locationTier struct {
	label   string
	points  float64
	needles []string
}

// NewConfig compiles cfg into a Config ready for repeated Normalize calls.
func NewConfig(cfg *config.Config) (Config, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, eris.Wrapf(err, "normalize: load timezone %q", cfg.Timezone)
	}

	tiers := make([]locationTier, 0, len(cfg.Locations))
	for _, t := range cfg.Locations {
		needles := make([]string, 0, len(t.Cities)+len(t.Aliases))
		for _, c := range t.Cities {
			needles = append(needles, strings.ToLower(c))
		}
		for _, a := range t.Aliases {
			needles = append(needles, strings.ToLower(a))
		}
		tiers = append(tiers, locationTier{label: t.Label, points: t.Points, needles: needles})
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].points > tiers[j].points })

	return Config{
		locationTiers: tiers,
		titleFilters:  cfg.TitleFilters,
		modes:         cfg.Modes,
		loc:           loc,
	}, nil
}

// Result pairs the normalized job with a Rejected flag so that a
// title-bucket rejection is a business decision, not an error.
type Result struct {
	Job      model.CanonicalJob
	Rejected bool
}

// Normalize converts raw into a CanonicalJob against cfg, evaluated as of now.
func Normalize(raw model.RawJob, cfg Config, now time.Time) Result {
	bucket := classifyTitle(raw.Title, cfg.titleFilters)

	city, province, country := splitLocation(raw.LocationRaw)
	tierLabel := matchLocationTier(raw.LocationRaw, cfg.locationTiers)
	mode := classifyWorkMode(raw.Content, raw.LocationRaw, city, cfg.modes)
	postedAt, confidence := resolvePostedAt(raw, now, cfg.loc)

	job := model.CanonicalJob{
		RawJobID:           raw.ID,
		Source:              raw.Source,
		Title:                raw.Title,
		Company:              normalizeCompany(raw.Company),
		URL:                  raw.URL,
		URLHash:              urlHash(raw.URL),
		ContentFingerprint:   contentFingerprint(raw.Content),
		City:                 city,
		Province:             province,
		Country:              country,
		LocationTier:         tierLabel,
		WorkMode:             mode,
		TitleBucket:          bucket,
		PostedAt:             postedAt,
		PostedAtConfidence:   confidence,
		FirstSeenAt:          now,
		Status:               model.StatusActive,
	}

	return Result{Job: job, Rejected: bucket == model.TitleBucketReject}
}

func classifyTitle(title string, filters config.TitleFiltersConfig) model.TitleBucket {
	lower := strings.ToLower(title)
	if containsAny(lower, filters.Reject) {
		return model.TitleBucketReject
	}
	if containsAny(lower, filters.Include) {
		return model.TitleBucketInclude
	}
	if containsAny(lower, filters.Maybe) {
		return model.TitleBucketMaybe
	}
	return model.TitleBucketReject
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// splitLocation does a best-effort "City, Province, Country"-style split
// on a free-text location string from a source connector.
func splitLocation(raw string) (city, province, country string) {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 1:
		city = parts[0]
	case 2:
		city, province = parts[0], parts[1]
	default:
		city, province, country = parts[0], parts[1], parts[2]
	}
	return city, province, country
}

func matchLocationTier(raw string, tiers []locationTier) string {
	lower := strings.ToLower(raw)
	for _, t := range tiers {
		for _, needle := range t.needles {
			if strings.Contains(lower, needle) {
				return t.label
			}
		}
	}
	return ""
}

func classifyWorkMode(content, locationRaw, city string, modes map[string]config.ModeConfig) model.WorkMode {
	text := strings.ToLower(content + " " + locationRaw)

	hasHybrid := containsAny(text, modes["hybrid"].Keywords)
	if hasHybrid {
		return model.WorkModeHybrid
	}

	hasRemote := containsAny(text, modes["remote"].Keywords)
	hasOnsite := containsAny(text, modes["onsite"].Keywords)
	concreteCity := city != "" && !strings.EqualFold(city, "remote")

	switch {
	case hasRemote && (hasOnsite || concreteCity):
		return model.WorkModeHybrid
	case hasRemote:
		return model.WorkModeRemote
	case hasOnsite:
		return model.WorkModeOnsite
	default:
		return model.WorkModeUnknown
	}
}

var legalSuffixRe = regexp.MustCompile(`(?i)\s*,?\s*(inc|llc|ltd|corp|corporation|co|company|group|plc|gmbh)\.?\s*$`)

func normalizeCompany(name string) string {
	stripped := legalSuffixRe.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(stripped), " ")
}

var (
	relativeUnitsAgo = regexp.MustCompile(`(?i)(\d+)\s*\+?\s*(hour|day|week|month)s?\s+ago`)
	shortDateWithYear = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{1,2}),?\s+(\d{4})\b`)
	shortDateNoYear   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{1,2})\b`)
)

// resolvePostedAt prefers the connector-reported timestamp (high
// confidence); failing that it looks for a relative-date phrase in the
// job's free text (medium confidence); failing that the job has no posted
// date at all (low confidence).
func resolvePostedAt(raw model.RawJob, now time.Time, loc *time.Location) (*time.Time, model.PostedAtConfidence) {
	if raw.PostedAt != nil {
		t := raw.PostedAt.In(loc)
		return &t, model.ConfidenceHigh
	}

	text := raw.Content + " " + raw.LocationRaw
	lower := strings.ToLower(text)

	if strings.Contains(lower, "today") {
		t := now.In(loc)
		return &t, model.ConfidenceMedium
	}
	if strings.Contains(lower, "yesterday") {
		t := now.AddDate(0, 0, -1).In(loc)
		return &t, model.ConfidenceMedium
	}
	if m := relativeUnitsAgo.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			var d time.Duration
			switch strings.ToLower(m[2]) {
			case "hour":
				d = time.Duration(n) * time.Hour
			case "day":
				d = time.Duration(n) * 24 * time.Hour
			case "week":
				d = time.Duration(n) * 7 * 24 * time.Hour
			case "month":
				d = time.Duration(n) * 30 * 24 * time.Hour
			}
			t := now.Add(-d).In(loc)
			return &t, model.ConfidenceMedium
		}
	}
	if m := shortDateWithYear.FindString(text); m != "" {
		for _, layout := range []string{"Jan 2, 2006", "January 2, 2006"} {
			if t, err := time.ParseInLocation(layout, normalizeMonthSpacing(m), loc); err == nil {
				return &t, model.ConfidenceMedium
			}
		}
	}
	if m := shortDateNoYear.FindString(text); m != "" {
		for _, layout := range []string{"Jan 2", "January 2"} {
			t, err := time.ParseInLocation(layout, normalizeMonthSpacing(m), loc)
			if err != nil {
				continue
			}
			t = t.AddDate(now.Year(), 0, 0)
			if t.After(now.AddDate(0, 0, 1)) {
				t = t.AddDate(-1, 0, 0)
			}
			return &t, model.ConfidenceMedium
		}
	}

	return nil, model.ConfidenceLow
}

func normalizeMonthSpacing(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func urlHash(rawURL string) string {
	stripped := strings.TrimRight(rawURL, "/")
	if i := strings.IndexByte(stripped, '?'); i >= 0 {
		stripped = stripped[:i]
	}
	sum := sha256.Sum256([]byte(strings.ToLower(stripped)))
	return hex.EncodeToString(sum[:])
}

var (
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

func contentFingerprint(content string) string {
	stripped := htmlTagRe.ReplaceAllString(strings.ToLower(content), " ")
	collapsed := strings.TrimSpace(whitespaceRe.ReplaceAllString(stripped, " "))
	sum := sha256.Sum256([]byte(collapsed))
	return hex.EncodeToString(sum[:])
}
