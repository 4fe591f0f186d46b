// Package generation asks an external generative model for candidate
// professionals and stores them as pending drafts.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash-lite"

	maxResponseBytes = 4 << 20
)

// Candidate is one generated professional before it becomes a draft.
type Candidate struct {
	Country string
	Fields  map[string]any
}

// Generator produces candidates for a free-text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]Candidate, error)
}

// ProviderError is a failed call to the model provider. Transient errors
// are worth another attempt; everything else is final.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation provider returned %d: %s", e.StatusCode, e.Message)
	}
	return "generation provider: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a provider failure that may succeed on retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// GeminiConfig configures the Gemini generateContent client.
type GeminiConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// GeminiClient calls the Gemini generateContent REST API.
type GeminiClient struct {
	cfg    GeminiConfig
	client *http.Client
}

func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

const promptTemplate = `You are a data API.
Return ONLY a valid JSON object.
Do not include explanations or code fences.

Using the following criteria:

%s

Return the data in this structure:

{
  "countries": [
    {
      "country": "Country Name",
      "professionals": [
        {
          "fullName": "First Last Other",
          "specificExpertise": "text",
          "affiliation": "text",
          "businessLocation": "City, Country",
          "citizenships": ["Country1","Country2"]
        }
      ]
    }
  ]
}`

func (c *GeminiClient) Generate(ctx context.Context, prompt string) ([]Candidate, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Model)

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": fmt.Sprintf(promptTemplate, prompt)}}},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Message: "request failed", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "read response", Transient: true, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseGeminiError(resp.StatusCode, raw)
	}

	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "malformed response envelope", Err: err}
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "response has no content"}
	}
	return ParseCandidates(envelope.Candidates[0].Content.Parts[0].Text)
}

func parseGeminiError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return &ProviderError{StatusCode: status, Message: msg, Transient: transientStatus(status)}
}

// ParseCandidates reads the model's countries/professionals document. Code
// fences around the JSON are tolerated.
func ParseCandidates(text string) ([]Candidate, error) {
	text = stripFences(text)
	var doc struct {
		Countries []struct {
			Country       string           `json:"country"`
			Professionals []map[string]any `json:"professionals"`
		} `json:"countries"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &ProviderError{Message: "model returned invalid JSON", Err: err}
	}
	var out []Candidate
	for _, c := range doc.Countries {
		for _, p := range c.Professionals {
			if len(p) == 0 {
				continue
			}
			out = append(out, Candidate{Country: strings.TrimSpace(c.Country), Fields: p})
		}
	}
	return out, nil
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
