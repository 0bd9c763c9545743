// Package discovery finds ATS job boards for companies that don't already
// have a known board, by matching web search results against a fixed set
// of platform URL patterns.
package discovery

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/scrape"
	"github.com/jobintel/pipeline/internal/searchapi"
)

// boardPathExclusions filters discovered board URLs whose path identifies a
// non-job subpage of an ATS-hosted mini-site (a company blog or press page
// served from the same board domain) rather than an actual job listing.
var boardPathExclusions = scrape.NewPathMatcher(nil)

// BoardPattern matches a search-result URL against one ATS platform family.
type BoardPattern struct {
	Platform  string
	Re        *regexp.Regexp
	SlugGroup int
}

// DefaultPatterns returns the ordered list of recognized ATS platforms.
// Order matters only for readability; patterns are disjoint in practice.
func DefaultPatterns() []BoardPattern {
	return []BoardPattern{
		{"greenhouse", regexp.MustCompile(`boards\.greenhouse\.io/([a-zA-Z0-9_-]+)`), 1},
		{"lever", regexp.MustCompile(`jobs\.lever\.co/([a-zA-Z0-9_-]+)`), 1},
		{"workday", regexp.MustCompile(`([a-zA-Z0-9_-]+)\.(?:wd1|wd3|wd5)\.myworkdayjobs\.com`), 1},
		{"ashby", regexp.MustCompile(`jobs\.ashbyhq\.com/([a-zA-Z0-9_-]+)`), 1},
		{"icims", regexp.MustCompile(`([a-zA-Z0-9_-]+)\.icims\.com`), 1},
		{"smartrecruiters", regexp.MustCompile(`careers\.smartrecruiters\.com/([a-zA-Z0-9_-]+)`), 1},
		{"bamboohr", regexp.MustCompile(`([a-zA-Z0-9_-]+)\.bamboohr\.com`), 1},
		{"indeed", regexp.MustCompile(`indeed\.com/cmp/([a-zA-Z0-9_-]+)`), 1},
	}
}

// BoardTemplate returns the canonical board URL for a platform+slug pair.
func BoardTemplate(platform, slug string) string {
	switch platform {
	case "greenhouse":
		return "https://boards.greenhouse.io/" + slug
	case "lever":
		return "https://jobs.lever.co/" + slug
	case "workday":
		return "https://" + slug + ".wd1.myworkdayjobs.com"
	case "ashby":
		return "https://jobs.ashbyhq.com/" + slug
	case "icims":
		return "https://" + slug + ".icims.com"
	case "smartrecruiters":
		return "https://careers.smartrecruiters.com/" + slug
	case "bamboohr":
		return "https://" + slug + ".bamboohr.com"
	case "indeed":
		return "https://www.indeed.com/cmp/" + slug
	default:
		return ""
	}
}

// DiscoveryStore is the subset of store operations discovery needs.
type DiscoveryStore interface {
	UpsertBoard(ctx context.Context, board model.DiscoveredBoard) error
}

// Summary holds the outcome statistics of a discovery run.
type Summary struct {
	QueriesRun       int
	ResultsExamined  int
	BoardsDiscovered int
	BoardsByPlatform map[string]int
}

// QueryPause is the polite delay between consecutive search queries.
// Discovery is throttled, not retried: a failing query is simply skipped.
const QueryPause = 1500 * time.Millisecond

// Discover runs one search query per entry in queries against searchClient,
// matches results against patterns, and upserts any newly found board into
// store with confidence raised to at least 0.75.
func Discover(ctx context.Context, queries []string, searchClient searchapi.Client, patterns []BoardPattern, store DiscoveryStore) (Summary, error) {
	summary := Summary{BoardsByPlatform: make(map[string]int)}

	for i, query := range queries {
		if i > 0 {
			t := time.NewTimer(QueryPause)
			select {
			case <-ctx.Done():
				t.Stop()
				return summary, ctx.Err()
			case <-t.C:
			}
		}

		summary.QueriesRun++

		results, err := searchClient.Search(ctx, query)
		if err != nil {
			zap.L().Warn("discovery: search query failed, skipping",
				zap.String("query", query), zap.Error(err))
			continue
		}

		for _, result := range results {
			summary.ResultsExamined++

			platform, slug := matchPattern(result.Link, patterns)
			if platform == "" {
				continue
			}
			if boardPathExclusions.IsExcluded(result.Link) {
				continue
			}

			boardURL := BoardTemplate(platform, slug)
			now := time.Now()
			board := model.DiscoveredBoard{
				Platform:   platform,
				BoardURL:   boardURL,
				BoardSlug:  slug,
				Confidence: 0.75,
				Status:     model.BoardStatusActive,
				LastSeenAt: now,
				CreatedAt:  now,
			}

			if err := store.UpsertBoard(ctx, board); err != nil {
				zap.L().Warn("discovery: upsert board failed",
					zap.String("board_url", boardURL), zap.Error(err))
				continue
			}

			summary.BoardsDiscovered++
			summary.BoardsByPlatform[platform]++
		}
	}

	return summary, nil
}

func matchPattern(link string, patterns []BoardPattern) (platform, slug string) {
	for _, p := range patterns {
		m := p.Re.FindStringSubmatch(link)
		if m != nil && len(m) > p.SlugGroup {
			return p.Platform, m[p.SlugGroup]
		}
	}
	return "", ""
}
