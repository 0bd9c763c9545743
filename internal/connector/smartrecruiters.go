package connector

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/model"
)

// SmartRecruitersConnector first tries SmartRecruiters' public postings API
// and falls back to scraping the hosted careers page when no API endpoint
// is configured for the company.
type SmartRecruitersConnector struct {
	fetcher fetcher.Fetcher
}

// NewSmartRecruitersConnector creates a SmartRecruitersConnector using f for HTTP retrieval.
func NewSmartRecruitersConnector(f fetcher.Fetcher) *SmartRecruitersConnector {
	return &SmartRecruitersConnector{fetcher: f}
}

func (c *SmartRecruitersConnector) Name() string { return "smartrecruiters" }

func (c *SmartRecruitersConnector) ValidateConfig(def SourceDef) error {
	if def.EndpointTemplate == "" && def.URLTemplate == "" {
		return eris.New("smartrecruiters: endpoint_template or url_template is required")
	}
	return nil
}

type smartRecruitersResponse struct {
	Content []smartRecruitersPosting `json:"content"`
}

type smartRecruitersPosting struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ReleasedDate string `json:"releasedDate"`
	Location  struct {
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
}

var smartRecruitersSelectors = SelectorSet{
	JobTitle:    ".job a, .postings-list a",
	JobLocation: ".job-location, .postings-location",
}

func (c *SmartRecruitersConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	if def.EndpointTemplate != "" {
		return c.fetchAPI(ctx, company, def)
	}
	return c.fetchHTML(ctx, company, def)
}

func (c *SmartRecruitersConnector) fetchAPI(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
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

	var resp smartRecruitersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		result.Error = eris.Wrap(err, "smartrecruiters: decode response").Error()
		return result, nil
	}

	now := time.Now()
	for _, p := range resp.Content {
		var postedAt *time.Time
		if t, perr := time.Parse(time.RFC3339, p.ReleasedDate); perr == nil {
			postedAt = &t
		}
		location := strings.TrimSpace(strings.Join([]string{p.Location.City, p.Location.Region, p.Location.Country}, ", "))
		raw, _ := json.Marshal(p)
		result.Jobs = append(result.Jobs, model.RawJob{
			Source:      c.Name(),
			SourceJobID: p.ID,
			Title:       p.Name,
			Company:     company.Name,
			URL:         "https://jobs.smartrecruiters.com/" + company.Slug + "/" + p.ID,
			LocationRaw: location,
			PostedAt:    postedAt,
			RawPayload:  string(raw),
			FetchedAt:   now,
		})
	}

	result.Success = true
	return result, nil
}

func (c *SmartRecruitersConnector) fetchHTML(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	result := ConnectorResult{Source: c.Name(), Company: company.Name}
	pageURL := strings.ReplaceAll(def.URLTemplate, "{slug}", company.Slug)

	origin, err := url.Parse(pageURL)
	if err != nil {
		return result, eris.Wrap(err, "smartrecruiters: parse url_template")
	}

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

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		result.Error = eris.Wrap(err, "smartrecruiters: parse html").Error()
		return result, nil
	}

	now := time.Now()
	for _, j := range Extract(doc, origin, smartRecruitersSelectors) {
		result.Jobs = append(result.Jobs, model.RawJob{
			Source:      c.Name(),
			SourceJobID: j.URL,
			Title:       j.Title,
			Company:     company.Name,
			URL:         j.URL,
			LocationRaw: j.Location,
			FetchedAt:   now,
		})
	}

	result.Success = true
	return result, nil
}
