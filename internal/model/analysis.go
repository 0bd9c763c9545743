package model

// Verdict is a closed enum for the LLM fit analyzer's overall judgment.
type Verdict string

const (
	VerdictStrong   Verdict = "strong"
	VerdictModerate Verdict = "moderate"
	VerdictWeak     Verdict = "weak"
	VerdictStretch  Verdict = "stretch"
)

// ParseVerdict maps a string to a Verdict.
func ParseVerdict(s string) (Verdict, bool) {
	switch Verdict(s) {
	case VerdictStrong, VerdictModerate, VerdictWeak, VerdictStretch:
		return Verdict(s), true
	default:
		return VerdictWeak, false
	}
}

// FitAnalysis holds the result of analyzing a CanonicalJob against a resume.
// At most one row exists per CanonicalJob.
type FitAnalysis struct {
	CanonicalJobID        int64    `json:"canonical_job_id" db:"canonical_job_id"`
	FitScore              int      `json:"fit_score" db:"fit_score"`
	Verdict                Verdict `json:"verdict" db:"verdict"`
	Summary                string  `json:"summary" db:"summary"`
	ExperienceLevelMatch   string  `json:"experience_level_match" db:"experience_level_match"`
	DomainRelevance        string  `json:"domain_relevance" db:"domain_relevance"`
	Recommendation         string  `json:"recommendation" db:"recommendation"`
	Strengths              []string `json:"strengths" db:"strengths"`
	Gaps                   []string `json:"gaps" db:"gaps"`
	MatchedSkills          []string `json:"matched_skills" db:"matched_skills"`
	MissingSkills          []string `json:"missing_skills" db:"missing_skills"`
	BonusSkills            []string `json:"bonus_skills" db:"bonus_skills"`
	TailoringTips          []string `json:"tailoring_tips" db:"tailoring_tips"`
	CoverLetterPoints      []string `json:"cover_letter_points" db:"cover_letter_points"`
	Provider               string  `json:"provider" db:"provider"`
	ModelUsed              string  `json:"model_used" db:"model_used"`
	PromptTokens           int64   `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens       int64   `json:"completion_tokens" db:"completion_tokens"`
}
