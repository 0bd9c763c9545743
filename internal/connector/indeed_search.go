package connector

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/searchapi"
)

// IndeedSearchConnector discovers postings through a search API rather than
// a per-company API or page, since Indeed does not expose either publicly.
// It runs each configured query (with {company} replaced by the seed's name)
// and keeps the organic results that link to indeed.com, taking the job title
// from the text before the first " - " or " | " separator and a relative
// post-age from the snippet text. The company is always the seed's name; it
// is not extracted from the result.
type IndeedSearchConnector struct {
	search searchapi.Client
}

// NewIndeedSearchConnector creates an IndeedSearchConnector using search to run queries.
func NewIndeedSearchConnector(search searchapi.Client) *IndeedSearchConnector {
	return &IndeedSearchConnector{search: search}
}

func (c *IndeedSearchConnector) Name() string { return "indeed_search" }

func (c *IndeedSearchConnector) ValidateConfig(def SourceDef) error {
	if len(def.Queries) == 0 {
		return eris.New("indeed_search: at least one query is required")
	}
	return nil
}

// titleSeparator splits "<job title> - <company> - Indeed.com"-style result titles.
var titleSeparator = regexp.MustCompile(`\s[-|]\s`)

var relativeAge = regexp.MustCompile(`(?i)(\d+)\s*\+?\s*(day|hour|week|month)s?\s+ago`)

func (c *IndeedSearchConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	result := ConnectorResult{Source: c.Name(), Company: company.Name}
	now := time.Now()

	start := time.Now()
	succeeded := 0
	for _, q := range def.Queries {
		query := strings.ReplaceAll(q, "{company}", company.Name)
		results, err := c.search.Search(ctx, query)
		if err != nil {
			result.Error = err.Error()
			continue
		}
		succeeded++

		for _, r := range results {
			if !strings.Contains(strings.ToLower(r.Link), "indeed.com/") {
				continue
			}
			parts := titleSeparator.Split(r.Title, -1)
			title := strings.TrimSpace(parts[0])
			postedAt := parsePostedRelative(r.Snippet, now)

			result.Jobs = append(result.Jobs, model.RawJob{
				Source:      c.Name(),
				SourceJobID: r.Link,
				Title:       title,
				Company:     company.Name,
				URL:         r.Link,
				Content:     r.Snippet,
				PostedAt:    postedAt,
				FetchedAt:   now,
			})
		}
	}
	result.ResponseTime = time.Since(start)

	result.Success = succeeded > 0
	return result, nil
}

// parsePostedRelative extracts phrases like "3 days ago" from a search
// snippet and resolves them against now.
func parsePostedRelative(snippet string, now time.Time) *time.Time {
	m := relativeAge.FindStringSubmatch(snippet)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
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
	default:
		return nil
	}
	t := now.Add(-d)
	return &t
}
