package campaign

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const completePackage = `{
	"recommendedPlatforms": [{"name": "Google Ads", "matchScore": 92, "rationale": "strong intent", "campaignTypes": ["Search Ads"]}],
	"notRecommendedPlatforms": [{"name": "Snapchat Ads", "rationale": "audience mismatch"}],
	"keywords": {"globalKeywords": ["coffee"], "localKeywords": ["coffee portland"]},
	"competitors": [{"name": "Rival Roasters", "estimatedMonthlyTraffic": "12000", "marketingChannels": ["Facebook"], "strength": "brand", "weakness": "pricing"}],
	"strategyTips": ["Lean into seasonal promotions"],
	"localContext": {"weatherSummary": "Rainy week ahead", "eventsSummary": []}
}`

func TestParsePackage(t *testing.T) {
	pkg, err := ParsePackage([]byte(completePackage))
	if err != nil {
		t.Fatalf("parse complete package: %v", err)
	}
	if len(pkg.RecommendedPlatforms) != 1 || pkg.RecommendedPlatforms[0].Name != "Google Ads" {
		t.Fatalf("unexpected recommended platforms: %+v", pkg.RecommendedPlatforms)
	}
	if pkg.RecommendedPlatforms[0].MatchScore == nil || *pkg.RecommendedPlatforms[0].MatchScore != 92 {
		t.Fatalf("match score not decoded: %+v", pkg.RecommendedPlatforms[0])
	}
	if pkg.NotRecommendedPlatforms[0].MatchScore != nil {
		t.Fatal("absent match score must stay nil")
	}
	if pkg.LocalContext == nil || pkg.LocalContext.WeatherSummary != "Rainy week ahead" {
		t.Fatalf("local context not decoded: %+v", pkg.LocalContext)
	}
	if len(pkg.Raw) == 0 {
		t.Fatal("raw bytes must be retained")
	}
}

func TestParsePackageMissingKeys(t *testing.T) {
	for _, key := range []string{
		"recommendedPlatforms",
		"notRecommendedPlatforms",
		"keywords",
		"competitors",
		"strategyTips",
		"localContext",
	} {
		t.Run(key, func(t *testing.T) {
			var doc map[string]json.RawMessage
			if err := json.Unmarshal([]byte(completePackage), &doc); err != nil {
				t.Fatalf("prepare document: %v", err)
			}
			delete(doc, key)
			data, err := json.Marshal(doc)
			if err != nil {
				t.Fatalf("marshal document: %v", err)
			}

			_, err = ParsePackage(data)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(vErr.Missing) != 1 || vErr.Missing[0] != key {
				t.Fatalf("expected missing %q, got %v", key, vErr.Missing)
			}
		})
	}
}

func TestParsePackageRejectsMalformed(t *testing.T) {
	if _, err := ParsePackage([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestEventLocationUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain string", `"Pioneer Courthouse Square, Portland"`, "Pioneer Courthouse Square, Portland"},
		{"structured", `{"street": "701 SW 6th Ave", "city": "Portland", "state": "OR", "zip": "97204"}`, "701 SW 6th Ave, Portland, OR, 97204"},
		{"partial structured", `{"city": "Portland", "state": "OR"}`, "Portland, OR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var loc EventLocation
			if err := json.Unmarshal([]byte(tc.in), &loc); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := loc.String(); got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
}

func TestEventLocationRoundTrip(t *testing.T) {
	in := `{"street":"701 SW 6th Ave","city":"Portland","mapsLink":"https://maps.example/x"}`
	var loc EventLocation
	if err := json.Unmarshal([]byte(in), &loc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(loc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, fragment := range []string{`"street":"701 SW 6th Ave"`, `"mapsLink":"https://maps.example/x"`} {
		if !strings.Contains(string(out), fragment) {
			t.Fatalf("round trip lost %s: %s", fragment, out)
		}
	}
}

func TestDeriveIndustry(t *testing.T) {
	d := Draft{Interests: []string{"Technology", "Finance"}}
	d.DeriveIndustry()
	if d.Industry != "Technology, Finance" {
		t.Fatalf("expected joined interests, got %q", d.Industry)
	}

	d.Interests = nil
	d.DeriveIndustry()
	if d.Industry != "" {
		t.Fatalf("expected empty industry, got %q", d.Industry)
	}
}
