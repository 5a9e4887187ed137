package iterata

import "time"

// Correction represents a single human fix to one machine-extracted field value.
// Values are stored as opaque strings; no type coercion is performed, and a
// no-op correction (original equal to corrected) is representable for audit.
type Correction struct {
	ID               string    `json:"correction_id" yaml:"correction_id"`
	Timestamp        time.Time `json:"timestamp" yaml:"-"`
	DocumentID       string    `json:"document_id" yaml:"document_id"`
	FieldPath        string    `json:"field_path" yaml:"field_path"`
	OriginalValue    string    `json:"original_value" yaml:"original_value"`
	CorrectedValue   string    `json:"corrected_value" yaml:"corrected_value"`
	ConfidenceBefore *float64  `json:"confidence_before,omitempty" yaml:"confidence_before,omitempty"`
	CorrectorID      string    `json:"corrector_id,omitempty" yaml:"corrector_id,omitempty"`
}

// Explanation categorizes why a correction was needed. At most one explanation
// exists per correction; attaching one is a monotonic, irreversible transition.
type Explanation struct {
	CorrectionID        string          `json:"correction_id"`
	Timestamp           time.Time       `json:"timestamp"`
	Text                string          `json:"explanation_text"`
	Type                ExplanationType `json:"explanation_type"`
	CorrectionType      CorrectionType  `json:"correction_type"`
	Category            Category        `json:"category"`
	Subcategory         string          `json:"subcategory,omitempty"`
	AutomationPotential float64         `json:"automation_potential"`
	Tags                []string        `json:"tags,omitempty"`
	ExplainerID         string          `json:"explainer_id,omitempty"`
}

// CorrectionType is the fine-grained classification of a correction.
type CorrectionType string

const (
	TypeFormatError     CorrectionType = "format_error"
	TypeBusinessRule    CorrectionType = "business_rule"
	TypeModelLimitation CorrectionType = "model_limitation"
	TypeContextMissing  CorrectionType = "context_missing"
	TypeOCRError        CorrectionType = "ocr_error"
	TypeOther           CorrectionType = "other"
)

// ValidCorrectionTypes returns all valid correction types.
func ValidCorrectionTypes() []CorrectionType {
	return []CorrectionType{
		TypeFormatError,
		TypeBusinessRule,
		TypeModelLimitation,
		TypeContextMissing,
		TypeOCRError,
		TypeOther,
	}
}

// IsValid checks if the correction type is one of the closed set.
func (t CorrectionType) IsValid() bool {
	for _, valid := range ValidCorrectionTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// Category is the coarse grouping used as the primary pattern key.
// It is derivable from CorrectionType but stored explicitly so hand-edited
// records remain self-describing.
type Category string

const (
	CategoryFormatting      Category = "formatting"
	CategoryDomainKnowledge Category = "domain_knowledge"
	CategoryModelBehavior   Category = "model_behavior"
	CategoryOther           Category = "other"
)

// ValidCategories returns all valid categories.
func ValidCategories() []Category {
	return []Category{
		CategoryFormatting,
		CategoryDomainKnowledge,
		CategoryModelBehavior,
		CategoryOther,
	}
}

// IsValid checks if the category is one of the closed set.
func (c Category) IsValid() bool {
	for _, valid := range ValidCategories() {
		if c == valid {
			return true
		}
	}
	return false
}

// CategoryFor maps a correction type onto its coarse category. Unknown types
// fall back to CategoryOther so grouping keys stay finite.
func CategoryFor(t CorrectionType) Category {
	switch t {
	case TypeFormatError, TypeOCRError:
		return CategoryFormatting
	case TypeBusinessRule, TypeContextMissing:
		return CategoryDomainKnowledge
	case TypeModelLimitation:
		return CategoryModelBehavior
	default:
		return CategoryOther
	}
}

// ExplanationType records how an explanation was produced.
type ExplanationType string

const (
	ExplanationHuman     ExplanationType = "human_provided"
	ExplanationInferred  ExplanationType = "llm_inferred"
	ExplanationValidated ExplanationType = "validated"
)

// Status is the lifecycle state of a stored record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExplained Status = "explained"
)

// StatusFilter selects records by lifecycle state when loading.
type StatusFilter string

const (
	FilterAll       StatusFilter = "all"
	FilterPending   StatusFilter = "pending"
	FilterExplained StatusFilter = "explained"
)

// Record is one persisted correction, optionally joined with its explanation.
// Body is the free-text markdown narrative preserved verbatim; Extra holds
// unknown header keys so hand-edited records survive round-trips intact.
type Record struct {
	Correction  Correction
	Explanation *Explanation
	Status      Status
	Body        string
	Extra       map[string]any
	Path        string
}

// Explained reports whether the record carries an explanation.
func (r *Record) Explained() bool {
	return r.Status == StatusExplained && r.Explanation != nil
}

// Impact is the derived severity band of a pattern.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Pattern is a derived aggregate of corrections sharing a grouping key.
// Patterns are recomputed on demand and never persisted; Frequency is always
// the exact member count at computation time.
type Pattern struct {
	ID                  string           `json:"pattern_id"`
	Category            Category         `json:"category"`
	Subcategory         string           `json:"subcategory,omitempty"`
	Description         string           `json:"description"`
	Frequency           int              `json:"frequency"`
	Impact              Impact           `json:"impact"`
	AutomationPotential float64          `json:"automation_potential"`
	FirstSeen           time.Time        `json:"first_seen"`
	LastSeen            time.Time        `json:"last_seen"`
	CorrectionIDs       []string         `json:"correction_ids"`
	Examples            []PatternExample `json:"examples,omitempty"`
}

// PatternExample is one member correction sampled into a pattern.
type PatternExample struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	FieldPath string `json:"field"`
}

// TransformationPattern groups corrections by the shape of the value change
// rather than by explanation category.
type TransformationPattern struct {
	Signature     string           `json:"signature"`
	Frequency     int              `json:"frequency"`
	Examples      []PatternExample `json:"examples,omitempty"`
	CorrectionIDs []string         `json:"correction_ids"`
}

// LogParams contains parameters for logging a new correction.
type LogParams struct {
	DocumentID       string   `json:"document_id"`
	FieldPath        string   `json:"field_path"`
	Original         string   `json:"original"`
	Corrected        string   `json:"corrected"`
	ConfidenceBefore *float64 `json:"confidence_before,omitempty"`
	CorrectorID      string   `json:"corrector_id,omitempty"`

	// Explanation, when non-empty, is a human-provided explanation attached
	// immediately after the correction is saved.
	Explanation string `json:"explanation,omitempty"`
}

// Readiness reports whether enough explained corrections and patterns exist
// to package a skill.
type Readiness struct {
	Ready            bool   `json:"ready"`
	Reason           string `json:"reason,omitempty"`
	CorrectionsCount int    `json:"corrections_count"`
	PatternsCount    int    `json:"patterns_count"`
}

// Defaults shared by the detector and the lifecycle coordinator.
const (
	// DefaultMinOccurrences is the minimum group size for a pattern.
	DefaultMinOccurrences = 3

	// DefaultMinCorrectionsForSkill gates skill generation.
	DefaultMinCorrectionsForSkill = 10

	// MaxPatternExamples bounds the sample of member corrections carried
	// by a pattern.
	MaxPatternExamples = 5
)
