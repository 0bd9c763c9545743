package analyzer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jobintel/pipeline/internal/model"
)

var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

type rawAnalysis struct {
	FitScore              *float64 `json:"fitScore"`
	Verdict               *string  `json:"verdict"`
	Summary               *string  `json:"summary"`
	ExperienceLevelMatch  *string  `json:"experienceLevelMatch"`
	DomainRelevance       *string  `json:"domainRelevance"`
	Recommendation        *string  `json:"recommendation"`
	Strengths             []string `json:"strengths"`
	Gaps                  []string `json:"gaps"`
	MatchedSkills         []string `json:"matchedSkills"`
	MissingSkills         []string `json:"missingSkills"`
	BonusSkills           []string `json:"bonusSkills"`
	TailoringTips         []string `json:"tailoringTips"`
	CoverLetterPoints     []string `json:"coverLetterPoints"`
}

// Parse extracts a FitAnalysis from the LLM's raw text response. A
// response missing the required fields is a business outcome, not an
// error, so Parse returns (nil, nil) rather than failing the pipeline.
func Parse(raw string) (*model.FitAnalysis, error) {
	cleaned := thinkBlockRe.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(cleaned)

	if m := fencedJSONRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}

	var r rawAnalysis
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil, nil
	}

	if r.FitScore == nil || r.Verdict == nil || r.Summary == nil {
		return nil, nil
	}

	verdict, _ := model.ParseVerdict(strings.ToLower(strings.TrimSpace(*r.Verdict)))

	experienceLevelMatch := "unknown"
	if r.ExperienceLevelMatch != nil && strings.TrimSpace(*r.ExperienceLevelMatch) != "" {
		experienceLevelMatch = *r.ExperienceLevelMatch
	}

	return &model.FitAnalysis{
		FitScore:              clampScore(*r.FitScore),
		Verdict:               verdict,
		Summary:               *r.Summary,
		ExperienceLevelMatch:  experienceLevelMatch,
		DomainRelevance:       derefOr(r.DomainRelevance),
		Recommendation:        derefOr(r.Recommendation),
		Strengths:             orEmpty(r.Strengths),
		Gaps:                  orEmpty(r.Gaps),
		MatchedSkills:         orEmpty(r.MatchedSkills),
		MissingSkills:         orEmpty(r.MissingSkills),
		BonusSkills:           orEmpty(r.BonusSkills),
		TailoringTips:         orEmpty(r.TailoringTips),
		CoverLetterPoints:     orEmpty(r.CoverLetterPoints),
	}, nil
}

func clampScore(score float64) int {
	switch {
	case score < 0:
		score = 0
	case score > 100:
		score = 100
	}
	return int(score + 0.5)
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
