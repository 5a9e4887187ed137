package iterata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-sonnet-4-5"
	anthropicMaxTokens    = 1000
)

// AnthropicExplainer generates explanations by asking the Anthropic Messages
// API for a structured classification of each correction. Transport failures
// and unparseable responses degrade to a fallback explanation rather than an
// error, so auto-explain never blocks the logging path.
type AnthropicExplainer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	debug   *DebugLogger
}

// AnthropicOption configures an AnthropicExplainer.
type AnthropicOption func(*AnthropicExplainer)

// WithAnthropicBaseURL overrides the API endpoint, for tests.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(e *AnthropicExplainer) {
		e.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAnthropicHTTPClient overrides the HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(e *AnthropicExplainer) {
		e.client = client
	}
}

// WithAnthropicDebugLogger attaches a debug logger.
func WithAnthropicDebugLogger(debug *DebugLogger) AnthropicOption {
	return func(e *AnthropicExplainer) {
		e.debug = debug
	}
}

// NewAnthropicExplainer creates an explainer using the given API key and
// model. An empty model selects the default.
func NewAnthropicExplainer(apiKey, model string, opts ...AnthropicOption) *AnthropicExplainer {
	if model == "" {
		model = anthropicDefaultModel
	}
	e := &AnthropicExplainer{
		baseURL: anthropicBaseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// classification is the structured answer requested from the model.
type classification struct {
	Category            string   `json:"category"`
	Subcategory         string   `json:"subcategory"`
	Description         string   `json:"description"`
	Tags                []string `json:"tags"`
	AutomationPotential float64  `json:"automation_potential"`
}

// Explain asks the model to classify the correction. Context cancellation is
// the only hard failure; API and parse errors produce a fallback explanation
// flagged for manual review.
func (e *AnthropicExplainer) Explain(ctx context.Context, c Correction) (*Explanation, error) {
	result, err := e.classify(ctx, c)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.debug.LogError("anthropic explain", err)
		return e.fallback(c, err), nil
	}

	correctionType := CorrectionType(result.Category)
	if !correctionType.IsValid() {
		correctionType = TypeOther
	}
	automation := result.AutomationPotential
	if automation < 0 || automation > 1 {
		automation = 0
	}
	return &Explanation{
		CorrectionID:        c.ID,
		Timestamp:           time.Now().UTC().Truncate(time.Second),
		Text:                result.Description,
		Type:                ExplanationInferred,
		CorrectionType:      correctionType,
		Category:            CategoryFor(correctionType),
		Subcategory:         result.Subcategory,
		AutomationPotential: automation,
		Tags:                result.Tags,
		ExplainerID:         e.model,
	}, nil
}

func (e *AnthropicExplainer) classify(ctx context.Context, c Correction) (*classification, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     e.model,
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildPrompt(c)},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if apiResp.Error != nil {
			return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, apiResp.Error.Message)
		}
		return nil, fmt.Errorf("api error %d", resp.StatusCode)
	}
	if len(apiResp.Content) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	e.debug.LogExplainer(c.ID, "response: "+truncateForLog(apiResp.Content[0].Text, 2000))

	var result classification
	text := extractJSON(apiResp.Content[0].Text)
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse classification: %w", err)
	}
	return &result, nil
}

func (e *AnthropicExplainer) fallback(c Correction, cause error) *Explanation {
	return &Explanation{
		CorrectionID:        c.ID,
		Timestamp:           time.Now().UTC().Truncate(time.Second),
		Text:                fmt.Sprintf("Automatic explanation failed: %v. Manual review needed.", cause),
		Type:                ExplanationInferred,
		CorrectionType:      TypeOther,
		Category:            CategoryOther,
		AutomationPotential: 0,
		Tags:                []string{"error", "needs_review"},
		ExplainerID:         e.model + "_fallback",
	}
}

func buildPrompt(c Correction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this correction a human made to an automatically extracted value.\n\n")
	fmt.Fprintf(&b, "Document: %s\n", c.DocumentID)
	fmt.Fprintf(&b, "Field: %s\n", c.FieldPath)
	fmt.Fprintf(&b, "Original value: %s\n", c.OriginalValue)
	fmt.Fprintf(&b, "Corrected value: %s\n\n", c.CorrectedValue)
	b.WriteString(`Provide a structured explanation of this correction.

Possible categories:
- format_error: formatting problem (decimal separator, date format, ...)
- business_rule: violation of a business rule
- model_limitation: limitation of the extraction model
- context_missing: missing context
- ocr_error: OCR error
- other: any other reason

Respond ONLY with valid JSON in exactly this shape:
{
    "category": "format_error|business_rule|model_limitation|context_missing|ocr_error|other",
    "subcategory": "specific subcategory if applicable, else empty",
    "description": "clear, concise description of the problem (1-2 sentences)",
    "tags": ["tag1", "tag2"],
    "automation_potential": 0.95
}

Respond with the JSON only, nothing else.`)
	return b.String()
}

// extractJSON tolerates markdown code fences around the model's JSON answer.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}
