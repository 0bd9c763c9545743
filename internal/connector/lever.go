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

// LeverConnector fetches postings from a Lever job board API.
type LeverConnector struct {
	fetcher fetcher.Fetcher
}

// NewLeverConnector creates a LeverConnector using f for HTTP retrieval.
func NewLeverConnector(f fetcher.Fetcher) *LeverConnector {
	return &LeverConnector{fetcher: f}
}

func (c *LeverConnector) Name() string { return "lever" }

func (c *LeverConnector) ValidateConfig(def SourceDef) error {
	if def.EndpointTemplate == "" {
		return eris.New("lever: endpoint_template is required")
	}
	return nil
}

type leverPosting struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	HostedURL        string `json:"hostedUrl"`
	DescriptionPlain string `json:"descriptionPlain"`
	CreatedAt        int64  `json:"createdAt"`
	Categories       struct {
		Location string `json:"location"`
	} `json:"categories"`
}

func (c *LeverConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	result := ConnectorResult{Source: c.Name(), Company: company.Name}

	endpoint := strings.ReplaceAll(def.EndpointTemplate, "{slug}", company.Slug)

	start := time.Now()
	body, status, err := c.fetcher.Fetch(ctx, endpoint, nil)
	result.ResponseTime = time.Since(start)

	if status == 429 {
		result.RateLimited = true
	}
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	var postings []leverPosting
	if err := json.Unmarshal(body, &postings); err != nil {
		result.Error = eris.Wrap(err, "lever: decode response").Error()
		return result, nil
	}

	now := time.Now()
	for _, p := range postings {
		var postedAt *time.Time
		if p.CreatedAt > 0 {
			t := time.UnixMilli(p.CreatedAt)
			postedAt = &t
		}

		raw, _ := json.Marshal(p)
		result.Jobs = append(result.Jobs, model.RawJob{
			Source:      c.Name(),
			SourceJobID: p.ID,
			Title:       p.Text,
			Company:     company.Name,
			URL:         p.HostedURL,
			LocationRaw: p.Categories.Location,
			Content:     p.DescriptionPlain,
			PostedAt:    postedAt,
			RawPayload:  string(raw),
			FetchedAt:   now,
		})
	}

	result.Success = true
	return result, nil
}
