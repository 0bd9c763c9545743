package connector

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SelectorSet names the CSS selectors a page-parser connector uses to pull
// job postings out of a rendered careers page.
type SelectorSet struct {
	JobTitle    string // e.g. ".job-title a"
	JobLocation string // e.g. ".job-location"
}

// ExtractedJob is one job posting lifted from an HTML careers page.
type ExtractedJob struct {
	Title    string
	URL      string
	Location string
}

var fallbackBlocklist = []string{"apply", "learn more", "view all"}

// Extract finds job postings in doc using sel's selectors, falling back to
// a heuristic anchor scan (links under /jobs/ or /careers/) when sel
// matches nothing. URLs are resolved to absolute against origin, and
// duplicate resolved URLs on the same page are dropped.
func Extract(doc *goquery.Document, origin *url.URL, sel SelectorSet) []ExtractedJob {
	seen := make(map[string]bool)
	var jobs []ExtractedJob

	if sel.JobTitle != "" {
		doc.Find(sel.JobTitle).Each(func(i int, el *goquery.Selection) {
			href, ok := el.Attr("href")
			if !ok {
				return
			}
			resolved := resolveURL(origin, href)
			if resolved == "" || seen[resolved] {
				return
			}
			seen[resolved] = true

			title := strings.TrimSpace(el.Text())
			location := ""
			if sel.JobLocation != "" {
				location = strings.TrimSpace(el.Closest(".job, li, tr").Find(sel.JobLocation).First().Text())
			}

			jobs = append(jobs, ExtractedJob{Title: title, URL: resolved, Location: location})
		})
	}

	if len(jobs) > 0 {
		return jobs
	}

	doc.Find(`a[href*="/jobs/"], a[href*="/careers/"]`).Each(func(i int, el *goquery.Selection) {
		href, ok := el.Attr("href")
		if !ok {
			return
		}
		text := strings.ToLower(strings.TrimSpace(el.Text()))
		if text == "" {
			return
		}
		for _, blocked := range fallbackBlocklist {
			if strings.Contains(text, blocked) {
				return
			}
		}

		resolved := resolveURL(origin, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true

		jobs = append(jobs, ExtractedJob{Title: strings.TrimSpace(el.Text()), URL: resolved})
	})

	return jobs
}

func resolveURL(origin *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return origin.ResolveReference(ref).String()
}
