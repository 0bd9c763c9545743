package connector

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/model"
)

// WorkdayConnector fetches postings from a Workday CXS job search API by
// walking offset/limit pages until a short page signals the end.
type WorkdayConnector struct {
	fetcher  fetcher.Fetcher
	pageSize int
}

// NewWorkdayConnector creates a WorkdayConnector using f for HTTP retrieval.
func NewWorkdayConnector(f fetcher.Fetcher) *WorkdayConnector {
	return &WorkdayConnector{fetcher: f, pageSize: 20}
}

func (c *WorkdayConnector) Name() string { return "workday" }

func (c *WorkdayConnector) ValidateConfig(def SourceDef) error {
	if def.EndpointTemplate == "" {
		return eris.New("workday: endpoint_template is required")
	}
	return nil
}

type workdayRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type workdayResponse struct {
	Total        int                `json:"total"`
	JobPostings  []workdayJobPosting `json:"jobPostings"`
}

type workdayJobPosting struct {
	Title          string `json:"title"`
	ExternalPath   string `json:"externalPath"`
	LocationsText  string `json:"locationsText"`
	PostedOn       string `json:"postedOn"`
	BulletFields   []string `json:"bulletFields"`
}

func (c *WorkdayConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	result := ConnectorResult{Source: c.Name(), Company: company.Name}
	endpoint := strings.ReplaceAll(def.EndpointTemplate, "{slug}", company.Slug)

	now := time.Now()
	offset := 0
	start := time.Now()

	for {
		reqBody, _ := json.Marshal(workdayRequest{
			AppliedFacets: map[string]any{},
			Limit:         c.pageSize,
			Offset:        offset,
			SearchText:    "",
		})

		body, status, err := c.fetcher.Post(ctx, endpoint, reqBody, map[string]string{"Content-Type": "application/json"})
		if status == 429 {
			result.RateLimited = true
		}
		if err != nil {
			result.Error = err.Error()
			result.ResponseTime = time.Since(start)
			return result, nil
		}

		var page workdayResponse
		if err := json.Unmarshal(body, &page); err != nil {
			result.Error = eris.Wrap(err, "workday: decode response").Error()
			result.ResponseTime = time.Since(start)
			return result, nil
		}

		for _, p := range page.JobPostings {
			var postedAt *time.Time
			if t, perr := time.Parse(time.RFC3339, p.PostedOn); perr == nil {
				postedAt = &t
			}
			raw, _ := json.Marshal(p)
			result.Jobs = append(result.Jobs, model.RawJob{
				Source:      c.Name(),
				SourceJobID: p.ExternalPath,
				Title:       p.Title,
				Company:     company.Name,
				URL:         p.ExternalPath,
				LocationRaw: p.LocationsText,
				Content:     strings.Join(p.BulletFields, "\n"),
				PostedAt:    postedAt,
				RawPayload:  string(raw),
				FetchedAt:   now,
			})
		}

		if len(page.JobPostings) < c.pageSize {
			break
		}
		offset += c.pageSize
	}

	result.ResponseTime = time.Since(start)
	result.Success = true
	return result, nil
}
