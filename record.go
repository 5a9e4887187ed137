package iterata

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Record file format: a YAML frontmatter header between "---" delimiters,
// followed by a free-text markdown body. The header is a flat mapping of
// scalar keys; the body is preserved verbatim so records stay human-editable
// without breaking machine parsing.

const frontmatterDelim = "---"

// Header keys. Unknown keys are preserved on round-trip, never dropped.
const (
	keyCorrectionID        = "correction_id"
	keyDocumentID          = "document_id"
	keyFieldPath           = "field_path"
	keyOriginalValue       = "original_value"
	keyCorrectedValue      = "corrected_value"
	keyTimestamp           = "timestamp"
	keyConfidenceBefore    = "confidence_before"
	keyCorrectorID         = "corrector_id"
	keyStatus              = "status"
	keyCategory            = "category"
	keyCorrectionType      = "correction_type"
	keySubcategory         = "subcategory"
	keyAutomationPotential = "automation_potential"
	keyTags                = "tags"
	keyExplanationType     = "explanation_type"
	keyExplainerID         = "explainer_id"
	keyExplainedAt         = "explained_at"
)

var requiredHeaderKeys = []string{
	keyCorrectionID,
	keyDocumentID,
	keyFieldPath,
	keyOriginalValue,
	keyCorrectedValue,
	keyTimestamp,
	keyStatus,
}

// recordHeader fixes the emission order of known keys. Field order here is
// the on-disk order.
type recordHeader struct {
	CorrectionID        string   `yaml:"correction_id"`
	DocumentID          string   `yaml:"document_id"`
	FieldPath           string   `yaml:"field_path"`
	OriginalValue       string   `yaml:"original_value"`
	CorrectedValue      string   `yaml:"corrected_value"`
	Timestamp           string   `yaml:"timestamp"`
	ConfidenceBefore    *float64 `yaml:"confidence_before,omitempty"`
	CorrectorID         string   `yaml:"corrector_id,omitempty"`
	Status              string   `yaml:"status"`
	Category            string   `yaml:"category,omitempty"`
	CorrectionType      string   `yaml:"correction_type,omitempty"`
	Subcategory         string   `yaml:"subcategory,omitempty"`
	AutomationPotential *float64 `yaml:"automation_potential,omitempty"`
	Tags                []string `yaml:"tags,omitempty"`
	ExplanationType     string   `yaml:"explanation_type,omitempty"`
	ExplainerID         string   `yaml:"explainer_id,omitempty"`
	ExplainedAt         string   `yaml:"explained_at,omitempty"`
}

// EncodeRecord serializes a record to its on-disk form.
func EncodeRecord(r *Record) ([]byte, error) {
	hdr := recordHeader{
		CorrectionID:     r.Correction.ID,
		DocumentID:       r.Correction.DocumentID,
		FieldPath:        r.Correction.FieldPath,
		OriginalValue:    r.Correction.OriginalValue,
		CorrectedValue:   r.Correction.CorrectedValue,
		Timestamp:        r.Correction.Timestamp.UTC().Format(time.RFC3339Nano),
		ConfidenceBefore: r.Correction.ConfidenceBefore,
		CorrectorID:      r.Correction.CorrectorID,
		Status:           string(r.Status),
	}

	if e := r.Explanation; e != nil {
		ap := e.AutomationPotential
		hdr.Category = string(e.Category)
		hdr.CorrectionType = string(e.CorrectionType)
		hdr.Subcategory = e.Subcategory
		hdr.AutomationPotential = &ap
		hdr.Tags = e.Tags
		hdr.ExplanationType = string(e.Type)
		hdr.ExplainerID = e.ExplainerID
		if !e.Timestamp.IsZero() {
			hdr.ExplainedAt = e.Timestamp.UTC().Format(time.RFC3339Nano)
		}
	}

	headerYAML, err := yaml.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("marshal record header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(headerYAML)
	if len(r.Extra) > 0 {
		extraYAML, err := marshalSorted(r.Extra)
		if err != nil {
			return nil, fmt.Errorf("marshal extra header keys: %w", err)
		}
		buf.Write(extraYAML)
	}
	buf.WriteString(frontmatterDelim + "\n")
	buf.WriteString(r.Body)
	return buf.Bytes(), nil
}

// marshalSorted marshals a map with deterministic key order.
func marshalSorted(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		out, err := yaml.Marshal(map[string]any{k: m[k]})
		if err != nil {
			return nil, err
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}

// ParseRecord decodes a record from its on-disk form. The path is carried
// into the returned record and any error for context.
func ParseRecord(path string, data []byte) (*Record, error) {
	header, rawBody, err := splitFrontmatter(data)
	if err != nil {
		return nil, &MalformedRecordError{Path: path, Reason: err.Error()}
	}
	body := string(rawBody)

	raw := map[string]any{}
	if err := yaml.Unmarshal(header, &raw); err != nil {
		return nil, &MalformedRecordError{Path: path, Reason: fmt.Sprintf("invalid YAML header: %v", err)}
	}

	for _, key := range requiredHeaderKeys {
		if _, ok := raw[key]; !ok {
			return nil, &MalformedRecordError{Path: path, Key: key, Reason: "missing required key"}
		}
	}

	rec := &Record{Body: body, Path: path, Extra: map[string]any{}}

	if rec.Correction.ID, err = headerString(path, raw, keyCorrectionID); err != nil {
		return nil, err
	}
	if rec.Correction.DocumentID, err = headerString(path, raw, keyDocumentID); err != nil {
		return nil, err
	}
	if rec.Correction.FieldPath, err = headerString(path, raw, keyFieldPath); err != nil {
		return nil, err
	}
	if rec.Correction.OriginalValue, err = headerValue(path, raw, keyOriginalValue); err != nil {
		return nil, err
	}
	if rec.Correction.CorrectedValue, err = headerValue(path, raw, keyCorrectedValue); err != nil {
		return nil, err
	}

	ts, err := headerTime(path, keyTimestamp, raw[keyTimestamp])
	if err != nil {
		return nil, err
	}
	rec.Correction.Timestamp = ts

	statusStr, err := headerString(path, raw, keyStatus)
	if err != nil {
		return nil, err
	}
	switch Status(statusStr) {
	case StatusPending, StatusExplained:
		rec.Status = Status(statusStr)
	default:
		return nil, &MalformedRecordError{Path: path, Key: keyStatus, Reason: fmt.Sprintf("unknown status %q", statusStr)}
	}

	if v, ok := raw[keyConfidenceBefore]; ok && v != nil {
		f, err := headerFloat(path, keyConfidenceBefore, v)
		if err != nil {
			return nil, err
		}
		rec.Correction.ConfidenceBefore = &f
	}
	if v, ok := raw[keyCorrectorID]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, &MalformedRecordError{Path: path, Key: keyCorrectorID, Reason: "not a string"}
		}
		rec.Correction.CorrectorID = s
	}

	if rec.Status == StatusExplained {
		expl, err := explanationFromHeader(path, raw, rec.Correction.ID, body)
		if err != nil {
			return nil, err
		}
		rec.Explanation = expl
	}

	for key, value := range raw {
		if !knownHeaderKey(key) {
			rec.Extra[key] = value
		}
	}
	return rec, nil
}

func explanationFromHeader(path string, raw map[string]any, correctionID, body string) (*Explanation, error) {
	e := &Explanation{CorrectionID: correctionID}

	catStr, err := headerString(path, raw, keyCategory)
	if err != nil {
		return nil, err
	}
	e.Category = Category(catStr)
	if !e.Category.IsValid() {
		return nil, &MalformedRecordError{Path: path, Key: keyCategory, Reason: fmt.Sprintf("unknown category %q", catStr)}
	}

	if v, ok := raw[keyCorrectionType]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, &MalformedRecordError{Path: path, Key: keyCorrectionType, Reason: "not a string"}
		}
		e.CorrectionType = CorrectionType(s)
		if !e.CorrectionType.IsValid() {
			e.CorrectionType = TypeOther
		}
	}
	if v, ok := raw[keySubcategory]; ok && v != nil {
		s, _ := v.(string)
		e.Subcategory = s
	}
	if v, ok := raw[keyAutomationPotential]; ok && v != nil {
		f, err := headerFloat(path, keyAutomationPotential, v)
		if err != nil {
			return nil, err
		}
		e.AutomationPotential = f
	}
	if v, ok := raw[keyTags]; ok && v != nil {
		tags, err := headerStringSlice(path, keyTags, v)
		if err != nil {
			return nil, err
		}
		e.Tags = tags
	}
	if v, ok := raw[keyExplanationType]; ok && v != nil {
		s, _ := v.(string)
		e.Type = ExplanationType(s)
	}
	if v, ok := raw[keyExplainerID]; ok && v != nil {
		s, _ := v.(string)
		e.ExplainerID = s
	}
	if v, ok := raw[keyExplainedAt]; ok && v != nil {
		if t, err := headerTime(path, keyExplainedAt, v); err == nil {
			e.Timestamp = t
		}
	}

	e.Text = explanationTextFromBody(body)
	return e, nil
}

func knownHeaderKey(key string) bool {
	switch key {
	case keyCorrectionID, keyDocumentID, keyFieldPath, keyOriginalValue,
		keyCorrectedValue, keyTimestamp, keyConfidenceBefore, keyCorrectorID,
		keyStatus, keyCategory, keyCorrectionType, keySubcategory,
		keyAutomationPotential, keyTags, keyExplanationType, keyExplainerID,
		keyExplainedAt:
		return true
	}
	return false
}

func headerString(path string, raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", &MalformedRecordError{Path: path, Key: key, Reason: "missing required key"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &MalformedRecordError{Path: path, Key: key, Reason: fmt.Sprintf("not a string (got %T)", v)}
	}
	return s, nil
}

// headerValue reads an opaque value field. Values are written quoted, but a
// hand-edited record may leave a bare scalar; scalars are accepted and
// stringified, anything structured is rejected.
func headerValue(path string, raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", &MalformedRecordError{Path: path, Key: key, Reason: "missing required key"}
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(val), nil
	default:
		return "", &MalformedRecordError{Path: path, Key: key, Reason: fmt.Sprintf("not a scalar (got %T)", v)}
	}
}

func headerFloat(path, key string, v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	default:
		return 0, &MalformedRecordError{Path: path, Key: key, Reason: fmt.Sprintf("not a number (got %T)", v)}
	}
}

// headerTime reads a timestamp key. The encoder writes quoted RFC 3339
// strings, but YAML resolves a hand-edited bare timestamp to time.Time;
// both forms are accepted.
func headerTime(path, key string, v any) (time.Time, error) {
	switch val := v.(type) {
	case string:
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return time.Time{}, &MalformedRecordError{Path: path, Key: key, Reason: fmt.Sprintf("not an RFC 3339 timestamp: %q", val)}
		}
		return t, nil
	case time.Time:
		return val, nil
	case nil:
		return time.Time{}, &MalformedRecordError{Path: path, Key: key, Reason: "missing required key"}
	default:
		return time.Time{}, &MalformedRecordError{Path: path, Key: key, Reason: fmt.Sprintf("not a timestamp (got %T)", v)}
	}
}

func headerStringSlice(path, key string, v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, &MalformedRecordError{Path: path, Key: key, Reason: fmt.Sprintf("not a list (got %T)", v)}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &MalformedRecordError{Path: path, Key: key, Reason: "list item is not a string"}
		}
		out = append(out, s)
	}
	return out, nil
}

// splitFrontmatter separates the YAML header from the markdown body.
func splitFrontmatter(data []byte) (header, body []byte, err error) {
	trimmed := bytes.TrimLeft(data, "\uFEFF")
	if !bytes.HasPrefix(trimmed, []byte(frontmatterDelim+"\n")) {
		return nil, nil, fmt.Errorf("missing frontmatter header")
	}
	rest := trimmed[len(frontmatterDelim)+1:]
	end := bytes.Index(rest, []byte("\n"+frontmatterDelim+"\n"))
	if end < 0 {
		// Header may close at end of file with no body.
		if bytes.HasSuffix(rest, []byte("\n"+frontmatterDelim)) {
			return rest[:len(rest)-len(frontmatterDelim)-1], nil, nil
		}
		return nil, nil, fmt.Errorf("unterminated frontmatter header")
	}
	return rest[:end+1], rest[end+len(frontmatterDelim)+2:], nil
}

// correctionBody renders the initial markdown narrative for a new correction.
func correctionBody(c *Correction) string {
	return fmt.Sprintf(`# Correction: %s

## Context
Document: %s
Timestamp: %s

## Values
- **Original**: %q
- **Corrected**: %q

## Explanation
[pending]

## Notes
`, c.FieldPath, c.DocumentID, c.Timestamp.UTC().Format(time.RFC3339), c.OriginalValue, c.CorrectedValue)
}

// explanationBody renders the markdown appended when an explanation is
// attached. The "[pending]" placeholder from the initial body is replaced.
func explanationBody(e *Explanation) string {
	var b strings.Builder
	b.WriteString("## Explanation\n\n")
	fmt.Fprintf(&b, "**Category**: `%s`\n", e.Category)
	if e.CorrectionType != "" {
		fmt.Fprintf(&b, "**Type**: `%s`\n", e.CorrectionType)
	}
	if e.Subcategory != "" {
		fmt.Fprintf(&b, "**Subcategory**: `%s`\n", e.Subcategory)
	}
	b.WriteString("\n")
	b.WriteString(e.Text)
	b.WriteString("\n")
	return b.String()
}

// attachExplanationBody splices the explanation narrative into an existing
// record body, replacing the pending placeholder section when present.
func attachExplanationBody(body string, e *Explanation) string {
	const placeholder = "## Explanation\n[pending]\n"
	rendered := explanationBody(e)
	if strings.Contains(body, placeholder) {
		return strings.Replace(body, placeholder, rendered, 1)
	}
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return body + "\n" + rendered
}

// explanationTextFromBody extracts the free-text explanation narrative from a
// record body. Returns the content of the "## Explanation" section after any
// **key**: lines, up to the next heading.
func explanationTextFromBody(body string) string {
	idx := strings.Index(body, "## Explanation")
	if idx < 0 {
		return ""
	}
	section := body[idx+len("## Explanation"):]
	if end := strings.Index(section, "\n## "); end >= 0 {
		section = section[:end]
	}

	var lines []string
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "**") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}
