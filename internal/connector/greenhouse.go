package connector

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/model"
)

// GreenhouseConnector fetches postings from a Greenhouse job board API.
type GreenhouseConnector struct {
	fetcher fetcher.Fetcher
}

// NewGreenhouseConnector creates a GreenhouseConnector using f for HTTP retrieval.
func NewGreenhouseConnector(f fetcher.Fetcher) *GreenhouseConnector {
	return &GreenhouseConnector{fetcher: f}
}

func (c *GreenhouseConnector) Name() string { return "greenhouse" }

func (c *GreenhouseConnector) ValidateConfig(def SourceDef) error {
	if def.EndpointTemplate == "" {
		return eris.New("greenhouse: endpoint_template is required")
	}
	return nil
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseJob struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	AbsoluteURL  string `json:"absolute_url"`
	Content      string `json:"content"`
	UpdatedAt    string `json:"updated_at"`
	Location     struct {
		Name string `json:"name"`
	} `json:"location"`
}

func (c *GreenhouseConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
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

	var resp greenhouseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		result.Error = eris.Wrap(err, "greenhouse: decode response").Error()
		return result, nil
	}

	now := time.Now()
	for _, j := range resp.Jobs {
		var postedAt *time.Time
		if t, perr := time.Parse(time.RFC3339, j.UpdatedAt); perr == nil {
			postedAt = &t
		}

		raw, _ := json.Marshal(j)
		result.Jobs = append(result.Jobs, model.RawJob{
			Source:      c.Name(),
			SourceJobID: strconv.FormatInt(j.ID, 10),
			Title:       j.Title,
			Company:     company.Name,
			URL:         j.AbsoluteURL,
			LocationRaw: j.Location.Name,
			Content:     j.Content,
			PostedAt:    postedAt,
			RawPayload:  string(raw),
			FetchedAt:   now,
		})
	}

	result.Success = true
	return result, nil
}
