package connector

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/model"
)

// ICIMSConnector scrapes an iCIMS-hosted careers page, which renders its
// listing server-side rather than exposing a JSON API.
type ICIMSConnector struct {
	fetcher fetcher.Fetcher
}

// NewICIMSConnector creates an ICIMSConnector using f for HTTP retrieval.
func NewICIMSConnector(f fetcher.Fetcher) *ICIMSConnector {
	return &ICIMSConnector{fetcher: f}
}

func (c *ICIMSConnector) Name() string { return "icims" }

func (c *ICIMSConnector) ValidateConfig(def SourceDef) error {
	if def.URLTemplate == "" {
		return eris.New("icims: url_template is required")
	}
	return nil
}

var icimsSelectors = SelectorSet{
	JobTitle:    "a.iCIMS_Anchor",
	JobLocation: ".iCIMS_JobHeaderLocationText",
}

func (c *ICIMSConnector) Fetch(ctx context.Context, company CompanySeed, def SourceDef) (ConnectorResult, error) {
	result := ConnectorResult{Source: c.Name(), Company: company.Name}
	pageURL := strings.ReplaceAll(def.URLTemplate, "{slug}", company.Slug)

	origin, err := url.Parse(pageURL)
	if err != nil {
		return result, eris.Wrap(err, "icims: parse url_template")
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
		result.Error = eris.Wrap(err, "icims: parse html").Error()
		return result, nil
	}

	now := time.Now()
	for _, j := range Extract(doc, origin, icimsSelectors) {
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
