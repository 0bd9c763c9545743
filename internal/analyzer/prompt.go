package analyzer

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobintel/pipeline/internal/model"
)

const maxPromptRunes = 8000

const systemPrompt = `You are a career-fit analyst. Given a candidate's resume and a single job posting, judge how well the candidate fits the role.

Respond with a single JSON object and nothing else, using exactly these fields:
{
  "fitScore": <integer 0-100>,
  "verdict": "strong" | "moderate" | "weak" | "stretch",
  "summary": "<one or two sentence verdict>",
  "experienceLevelMatch": "under" | "match" | "over" | "unknown",
  "domainRelevance": "<short phrase>",
  "recommendation": "<apply or skip advice>",
  "strengths": ["..."],
  "gaps": ["..."],
  "matchedSkills": ["..."],
  "missingSkills": ["..."],
  "bonusSkills": ["..."],
  "tailoringTips": ["..."],
  "coverLetterPoints": ["..."]
}`

// BuildPrompt composes the fixed system prompt and a labeled user prompt
// for one job against one resume.
func BuildPrompt(job model.CanonicalJob, descriptionHTML, resume string) (system, user string) {
	description := cleanDescription(descriptionHTML)

	var b strings.Builder
	fmt.Fprintf(&b, "Job Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Company: %s\n", job.Company)
	if job.City != "" {
		fmt.Fprintf(&b, "Location: %s, %s\n", job.City, job.Province)
	}
	fmt.Fprintf(&b, "Work Mode: %s\n\n", job.WorkMode)
	b.WriteString("Job Description:\n")
	b.WriteString(description)
	b.WriteString("\n\nResume:\n")
	b.WriteString(resume)
	b.WriteString("\n\nRespond with the JSON object described in the system prompt.")

	return systemPrompt, b.String()
}

func cleanDescription(descriptionHTML string) string {
	text := descriptionHTML
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(descriptionHTML)); err == nil {
		text = doc.Text()
	}

	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > maxPromptRunes {
		text = string(runes[:maxPromptRunes]) + "...[truncated]"
	}
	return text
}
