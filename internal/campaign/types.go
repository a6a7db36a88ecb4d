package campaign

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Draft is the in-progress business profile collected by the intake wizard.
// Industry is derived from Interests and never edited directly.
type Draft struct {
	BusinessName        string   `json:"businessName"`
	BusinessDescription string   `json:"businessDescription"`
	BusinessGoals       []string `json:"businessGoals"`
	Demographics        []string `json:"demographics"`
	Interests           []string `json:"interests"`
	Location            string   `json:"location"`
	Industry            string   `json:"industry"`
}

// DeriveIndustry recomputes the industry string from the interest set.
func (d *Draft) DeriveIndustry() {
	d.Industry = strings.Join(d.Interests, ", ")
}

// PlatformCandidate is one ad platform proposed by the planner service.
// MatchScore stays a pointer so a missing score is distinguishable from zero.
type PlatformCandidate struct {
	Name          string   `json:"name"`
	MatchScore    *float64 `json:"matchScore,omitempty"`
	Rationale     string   `json:"rationale,omitempty"`
	CampaignTypes []string `json:"campaignTypes,omitempty"`
}

// KeywordSet splits suggested keywords into global and location-specific.
type KeywordSet struct {
	GlobalKeywords []string `json:"globalKeywords"`
	LocalKeywords  []string `json:"localKeywords"`
}

// Competitor describes one competitor profile in the campaign package.
type Competitor struct {
	Name                    string   `json:"name"`
	Description             string   `json:"description,omitempty"`
	EstimatedMonthlyTraffic string   `json:"estimatedMonthlyTraffic,omitempty"`
	MarketingChannels       []string `json:"marketingChannels,omitempty"`
	Strength                string   `json:"strength,omitempty"`
	Weakness                string   `json:"weakness,omitempty"`
}

// EventLocation is either a plain address string or a structured venue.
type EventLocation struct {
	Text         string `json:"-"`
	Street       string `json:"street,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip,omitempty"`
	MapsLink     string `json:"mapsLink,omitempty"`
	EventWebsite string `json:"eventWebsite,omitempty"`
}

// UnmarshalJSON accepts both representations the planner service emits.
func (l *EventLocation) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*l = EventLocation{Text: text}
		return nil
	}
	type structured EventLocation
	var s structured
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("event location: %w", err)
	}
	*l = EventLocation(s)
	return nil
}

// MarshalJSON writes back the same shape that was received.
func (l EventLocation) MarshalJSON() ([]byte, error) {
	if l.Text != "" {
		return json.Marshal(l.Text)
	}
	type structured EventLocation
	return json.Marshal(structured(l))
}

// String renders a single-line address for logs and summaries.
func (l EventLocation) String() string {
	if l.Text != "" {
		return l.Text
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{l.Street, l.City, l.State, l.Zip} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// Event is one local event surfaced in the package's local context.
type Event struct {
	Name      string        `json:"name"`
	Date      string        `json:"date,omitempty"`
	Location  EventLocation `json:"location,omitempty"`
	Relevance string        `json:"relevance,omitempty"`
}

// LocalContext carries weather and event intelligence for the campaign location.
type LocalContext struct {
	WeatherSummary string  `json:"weatherSummary"`
	EventsSummary  []Event `json:"eventsSummary"`
}

// Package is the validated result of a recommendation request. It is
// read-only once committed to the session store.
type Package struct {
	RecommendedPlatforms    []PlatformCandidate `json:"recommendedPlatforms"`
	NotRecommendedPlatforms []PlatformCandidate `json:"notRecommendedPlatforms"`
	Keywords                KeywordSet          `json:"keywords"`
	Competitors             []Competitor        `json:"competitors"`
	StrategyTips            []string            `json:"strategyTips"`
	LocalContext            *LocalContext       `json:"localContext"`

	// Raw holds the validated response bytes so the package can be
	// forwarded and persisted without dropping fields this struct does
	// not model (e.g. contentRecommendation).
	Raw json.RawMessage `json:"-"`
}
