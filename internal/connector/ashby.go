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

// AshbyConnector fetches postings from Ashby's public job-board GraphQL-style
// POST endpoint, which returns the full board in a single response.
type AshbyConnector struct {
	fetcher fetcher.Fetcher
}

// NewAshbyConnector creates an AshbyConnector using f for HTTP retrieval.
func NewAshbyConnector(f fetcher.Fetcher) *AshbyConnector {
	return &AshbyConnector{fetcher: f}
}

func (c *AshbyConnector) Name() string { return "ashby" }

func (c *AshbyConnector) ValidateConfig(def SourceDef) error {
	if def.EndpointTemplate == "" {
		return eris.New("ashby: endpoint_template is required")
	}
	return nil
}

type ashbyRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

const ashbyQuery = `query ApiJobBoardWithTeams($organizationHostedJobsPageName: String!) {
  jobBoard: jobBoardWithTeams(organizationHostedJobsPageName: $organizationHostedJobsPageName) {
    jobPostings {
      id
      title
      locationName
      employmentType
      descriptionHtml
      publishedAt
    }
  }
}`

type ashbyResponse struct {
	Data struct {
		JobBoard struct {
			JobPostings []ashbyJobPosting `json:"jobPostings"`
		} `json:"jobBoard"`
	} `json:"data"`
}

type ashbyJobPosting struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	LocationName    string `json:"locationName"`
	EmploymentType  string `json:"employmentType"`
	DescriptionHTML string `json:"descriptionHtml"`
	PublishedAt     string `json:"publishedAt"`
}

func (c *AshbyConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	result := ConnectorResult{Source: c.Name(), Company: company.Name}
	endpoint := strings.ReplaceAll(def.EndpointTemplate, "{slug}", company.Slug)

	reqBody, _ := json.Marshal(ashbyRequest{
		OperationName: "ApiJobBoardWithTeams",
		Variables:     map[string]any{"organizationHostedJobsPageName": company.Slug},
		Query:         ashbyQuery,
	})

	start := time.Now()
	body, status, err := c.fetcher.Post(ctx, endpoint, reqBody, map[string]string{"Content-Type": "application/json"})
	result.ResponseTime = time.Since(start)

	if status == 429 {
		result.RateLimited = true
	}
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	var resp ashbyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		result.Error = eris.Wrap(err, "ashby: decode response").Error()
		return result, nil
	}

	now := time.Now()
	for _, p := range resp.Data.JobBoard.JobPostings {
		var postedAt *time.Time
		if t, perr := time.Parse(time.RFC3339, p.PublishedAt); perr == nil {
			postedAt = &t
		}
		raw, _ := json.Marshal(p)
		result.Jobs = append(result.Jobs, model.RawJob{
			Source:      c.Name(),
			SourceJobID: p.ID,
			Title:       p.Title,
			Company:     company.Name,
			URL:         "https://jobs.ashbyhq.com/" + company.Slug + "/" + p.ID,
			LocationRaw: p.LocationName,
			Content:     p.DescriptionHTML,
			PostedAt:    postedAt,
			RawPayload:  string(raw),
			FetchedAt:   now,
		})
	}

	result.Success = true
	return result, nil
}
