package iterata

import (
	"context"
	"strings"
	"time"
)

// Explainer produces an Explanation for a correction. Implementations must
// not retry internally: a failure is surfaced to the caller as-is, wrapped by
// the coordinator into an ExplanationError.
type Explainer interface {
	Explain(ctx context.Context, c Correction) (*Explanation, error)
}

// MockExplainer is a deterministic Explainer for tests and dry runs. It
// classifies by a trivial heuristic on the value pair and never fails unless
// Err is set.
type MockExplainer struct {
	// Err, when set, is returned by every Explain call.
	Err error
}

// Explain returns a canned explanation for the correction.
func (m *MockExplainer) Explain(_ context.Context, c Correction) (*Explanation, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	correctionType := TypeOther
	if sig := InferSignature(DefaultSignatureRules(), c.OriginalValue, c.CorrectedValue); !strings.HasPrefix(sig, "exact:") && sig != "identity" {
		correctionType = TypeFormatError
	}
	return &Explanation{
		CorrectionID:        c.ID,
		Timestamp:           time.Now().UTC().Truncate(time.Second),
		Text:                "Mock explanation for testing",
		Type:                ExplanationInferred,
		CorrectionType:      correctionType,
		Category:            CategoryFor(correctionType),
		AutomationPotential: 0.5,
		Tags:                []string{"test"},
		ExplainerID:         "mock",
	}, nil
}

// NewExplainer builds the Explainer selected by the backend config. A nil
// Explainer with a nil error means no backend is configured.
func NewExplainer(cfg BackendConfig) (Explainer, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "mock":
		return &MockExplainer{}, nil
	case "anthropic":
		return NewAnthropicExplainer(cfg.APIKey, cfg.Model), nil
	default:
		return nil, &ValidationError{Field: "Backend.Provider", Message: "unknown explainer backend: " + cfg.Provider}
	}
}
