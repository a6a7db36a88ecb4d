package api

import (
	"campaign-planner/backend/internal/campaign"
	"campaign-planner/backend/internal/ranking"
)

// SessionResponse returns a freshly minted session identifier.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// WizardStateDTO is the API representation of the intake wizard.
type WizardStateDTO struct {
	Step       int               `json:"step"`
	StepTitle  string            `json:"step_title"`
	StepTitles []string          `json:"step_titles"`
	Errors     map[string]string `json:"errors"`
	Draft      campaign.Draft    `json:"draft"`
}

// FieldRequest updates one free-text draft field.
type FieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ToggleRequest toggles one member of a draft set field.
type ToggleRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// RankedDTO pairs a platform candidate with its display label.
type RankedDTO struct {
	Name          string   `json:"name"`
	MatchScore    *float64 `json:"matchScore,omitempty"`
	Rationale     string   `json:"rationale,omitempty"`
	CampaignTypes []string `json:"campaignTypes,omitempty"`
	Label         string   `json:"label"`
}

// RecommendationsResponse carries both ranked buckets plus the package
// sections that render alongside them.
type RecommendationsResponse struct {
	Recommended    []RankedDTO            `json:"recommended"`
	NotRecommended []RankedDTO            `json:"notRecommended"`
	Keywords       campaign.KeywordSet    `json:"keywords"`
	Competitors    []campaign.Competitor  `json:"competitors"`
	StrategyTips   []string               `json:"strategyTips"`
	LocalContext   *campaign.LocalContext `json:"localContext,omitempty"`
}

// RankedFromModel converts ranked candidates into their DTO form.
func RankedFromModel(items []ranking.Ranked) []RankedDTO {
	out := make([]RankedDTO, 0, len(items))
	for _, item := range items {
		out = append(out, RankedDTO{
			Name:          item.Candidate.Name,
			MatchScore:    item.Candidate.MatchScore,
			Rationale:     item.Candidate.Rationale,
			CampaignTypes: item.Candidate.CampaignTypes,
			Label:         item.Label,
		})
	}
	return out
}

// PlatformRequest selects the platform for a question flow.
type PlatformRequest struct {
	Platform string `json:"platform"`
}

// AdTypeRequest selects the ad type for a question flow.
type AdTypeRequest struct {
	AdType string `json:"adType"`
}

// AnswerRequest answers the current question.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// AdTypesResponse lists the ad types offered for the selected platform.
type AdTypesResponse struct {
	Platform           string   `json:"platform"`
	RecommendedAdTypes []string `json:"recommendedAdTypes"`
}

// FlowStateDTO is the API representation of the question flow.
type FlowStateDTO struct {
	Platform        string            `json:"platform"`
	AdType          string            `json:"adType"`
	QuestionCount   int               `json:"question_count"`
	CurrentIndex    int               `json:"current_index"`
	CurrentQuestion string            `json:"current_question,omitempty"`
	Answers         map[string]string `json:"answers"`
	Complete        bool              `json:"complete"`
}

// ScriptResponse carries a generated ad script.
type ScriptResponse struct {
	Script string `json:"script"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
