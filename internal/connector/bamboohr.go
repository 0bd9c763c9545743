package connector

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/model"
)

// BambooHRConnector scrapes a BambooHR careers page, whose job list ships as
// a JSON blob assigned to a JavaScript variable inside an inline <script>
// tag rather than as a separate API response.
type BambooHRConnector struct {
	fetcher fetcher.Fetcher
}

// NewBambooHRConnector creates a BambooHRConnector using f for HTTP retrieval.
func NewBambooHRConnector(f fetcher.Fetcher) *BambooHRConnector {
	return &BambooHRConnector{fetcher: f}
}

func (c *BambooHRConnector) Name() string { return "bamboohr" }

func (c *BambooHRConnector) ValidateConfig(def SourceDef) error {
	if def.URLTemplate == "" {
		return eris.New("bamboohr: url_template is required")
	}
	return nil
}

var bambooJobsBlobRe = regexp.MustCompile(`(?s)var\s+jobsData\s*=\s*(\[.*?\]);`)

type bambooJobPosting struct {
	ID         json.Number `json:"id"`
	JobOpening struct {
		Title struct {
			Label string `json:"label"`
		} `json:"title"`
	} `json:"jobOpeningName"`
	Location struct {
		Label string `json:"label"`
	} `json:"location"`
	Department struct {
		Label string `json:"label"`
	} `json:"department"`
	PostedDate string `json:"postedDate"`
}

func (c *BambooHRConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	result := ConnectorResult{Source: c.Name(), Company: company.Name}
	pageURL := strings.ReplaceAll(def.URLTemplate, "{slug}", company.Slug)

	start := time.Now()
	body, status, err := c.fetcher.Fetch(ctx, pageURL, nil)
	result.ResponseTime = time.Since(start)

	if status == 429 {
		result.RateLimited = true
	}
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	match := bambooJobsBlobRe.FindSubmatch(body)
	if match == nil {
		result.Error = "bamboohr: jobsData blob not found in page"
		return result, nil
	}

	var postings []bambooJobPosting
	if err := json.Unmarshal(match[1], &postings); err != nil {
		result.Error = eris.Wrap(err, "bamboohr: decode jobsData blob").Error()
		return result, nil
	}

	now := time.Now()
	for _, p := range postings {
		var postedAt *time.Time
		if t, perr := time.Parse("2006-01-02", p.PostedDate); perr == nil {
			postedAt = &t
		}
		raw, _ := json.Marshal(p)
		result.Jobs = append(result.Jobs, model.RawJob{
			Source:      c.Name(),
			SourceJobID: p.ID.String(),
			Title:       p.JobOpening.Title.Label,
			Company:     company.Name,
			URL:         pageURL + "#" + p.ID.String(),
			LocationRaw: p.Location.Label,
			Content:     p.Department.Label,
			PostedAt:    postedAt,
			RawPayload:  string(raw),
			FetchedAt:   now,
		})
	}

	result.Success = true
	return result, nil
}
