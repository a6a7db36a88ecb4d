package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campaign-planner/backend/internal/campaign"
)

// Planner is the outbound contract to the recommendation/generation
// service. The flow engine and wizard depend on this interface so tests
// can substitute doubles.
type Planner interface {
	Recommend(ctx context.Context, draft campaign.Draft) (*campaign.Package, error)
	AdTypes(ctx context.Context, platform string, campaignData json.RawMessage) ([]string, error)
	Questions(ctx context.Context, platform, adType string, campaignData json.RawMessage) ([]Question, error)
	GenerateScript(ctx context.Context, req ScriptRequest) (string, error)
}

// Config holds planner service connection parameters.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Question is one entry of a server-driven question schema. The service
// may attach extra fields; only the question text drives the flow.
type Question struct {
	Text string `json:"question"`
}

// ScriptRequest assembles everything the service needs to write an ad script.
type ScriptRequest struct {
	Platform     string            `json:"platform"`
	AdType       string            `json:"adType"`
	CampaignData json.RawMessage   `json:"campaignData"`
	Answers      map[string]string `json:"answers"`
}

// StatusError reports a non-success response from the planner service.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("planner service status %d", e.Code)
	}
	return fmt.Sprintf("planner service status %d: %s", e.Code, e.Detail)
}

// Client talks JSON-over-HTTP to the planner service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient constructs a planner client, applying defaults for anything unset.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("planner base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
	}, nil
}

// Recommend requests a full campaign package for the submitted draft.
// Responses missing required keys fail with *campaign.ValidationError.
func (c *Client) Recommend(ctx context.Context, draft campaign.Draft) (*campaign.Package, error) {
	body, err := c.post(ctx, "/recommendation", draft)
	if err != nil {
		return nil, err
	}
	return campaign.ParsePackage(body)
}

// AdTypes fetches the ad types offered for a platform.
func (c *Client) AdTypes(ctx context.Context, platform string, campaignData json.RawMessage) ([]string, error) {
	payload := map[string]any{
		"platform":     platform,
		"campaignData": campaignData,
	}
	body, err := c.post(ctx, "/script/ask-questions", payload)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		RecommendedAdTypes []string `json:"recommendedAdTypes"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode ad types: %w", err)
	}
	return decoded.RecommendedAdTypes, nil
}

// Questions fetches the ordered question schema for a platform/ad-type pair.
func (c *Client) Questions(ctx context.Context, platform, adType string, campaignData json.RawMessage) ([]Question, error) {
	payload := map[string]any{
		"platform":     platform,
		"campaignData": campaignData,
	}
	body, err := c.post(ctx, "/script/ask-questions/"+url.PathEscape(adType), payload)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return decoded.Questions, nil
}

// GenerateScript requests the final ad script once every question is answered.
func (c *Client) GenerateScript(ctx context.Context, req ScriptRequest) (string, error) {
	body, err := c.post(ctx, "/script/generate-script", req)
	if err != nil {
		return "", err
	}
	var decoded struct {
		Script string `json:"script"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode script: %w", err)
	}
	script := strings.TrimSpace(decoded.Script)
	if script == "" {
		return "", &StatusError{Code: http.StatusOK, Detail: "empty script"}
	}
	return script, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("planner request: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Code: resp.StatusCode, Detail: snippet(buf.String())}
	}
	return buf.Bytes(), nil
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200]
	}
	return body
}
