package iterata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/hyperengineering/iterata/internal/store"
)

// DefaultSkillName is the skill package name when none is given.
const DefaultSkillName = "extraction-expertise"

// SkillResult reports the outcome of a skill generation.
type SkillResult struct {
	Updated          bool   `json:"updated"`
	Reason           string `json:"reason,omitempty"`
	SkillFile        string `json:"skill_file,omitempty"`
	SkillName        string `json:"skill_name,omitempty"`
	CorrectionsCount int    `json:"corrections_count"`
	PatternsCount    int    `json:"patterns_count"`
}

// SkillGenerator renders detected patterns into an on-disk skill package:
// a SKILL.md overview, per-category rule files, JSON example files for
// few-shot prompting, and an executable validation script.
type SkillGenerator struct {
	storage  Storage
	detector *Detector
}

// NewSkillGenerator creates a generator over storage.
func NewSkillGenerator(storage Storage) *SkillGenerator {
	return &SkillGenerator{
		storage:  storage,
		detector: NewDetector(storage),
	}
}

// Generate writes the skill package into skillPath. The directory is created
// if needed; existing files are overwritten.
func (g *SkillGenerator) Generate(skillPath, skillName string) (*SkillResult, error) {
	if skillName == "" {
		skillName = DefaultSkillName
	}

	explained, err := g.storage.LoadCorrections(FilterExplained)
	if err != nil {
		return nil, err
	}
	patterns, err := g.detector.DetectPatterns(DefaultMinOccurrences)
	if err != nil {
		return nil, err
	}
	transformations, err := g.detector.DetectTransformationPatterns(DefaultMinOccurrences)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{skillPath, filepath.Join(skillPath, "rules"), filepath.Join(skillPath, "examples"), filepath.Join(skillPath, "scripts")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "generate skill", Path: dir, Err: err}
		}
	}

	skillFile := filepath.Join(skillPath, "SKILL.md")
	if err := g.writeSkillMD(skillFile, skillName, explained, patterns, transformations); err != nil {
		return nil, err
	}
	if err := g.writeRules(filepath.Join(skillPath, "rules"), explained, patterns); err != nil {
		return nil, err
	}
	if err := g.writeExamples(filepath.Join(skillPath, "examples"), explained, patterns); err != nil {
		return nil, err
	}
	if err := g.writeValidationScript(filepath.Join(skillPath, "scripts", "validate_extraction.py"), transformations); err != nil {
		return nil, err
	}
	if err := g.writeReadme(filepath.Join(skillPath, "README.md"), skillName, explained, patterns); err != nil {
		return nil, err
	}

	return &SkillResult{
		Updated:          true,
		SkillFile:        skillFile,
		SkillName:        skillName,
		CorrectionsCount: len(explained),
		PatternsCount:    len(patterns),
	}, nil
}

var skillMDTemplate = template.Must(template.New("skill").Funcs(template.FuncMap{
	"automationPct": func(p float64) float64 { return p * 100 },
}).Parse(`---
name: {{.Name}}
description: Extraction expertise distilled from {{.TotalCorrections}} human corrections.
generated_at: {{.GeneratedAt}}
---

# {{.Name}}

Knowledge distilled from {{.TotalCorrections}} explained corrections and {{.PatternCount}} recurring patterns.

## Top Patterns
{{range .TopPatterns}}
### {{.Description}}
- Category: {{.Category}}
- Frequency: {{.Frequency}} occurrences ({{.Impact}} impact)
- Automation potential: {{printf "%.0f%%" (automationPct .AutomationPotential)}}
{{end}}
{{if .Automatable}}
## Automation Candidates

These patterns score high enough to automate:
{{range .Automatable}}
- {{.Description}} ({{.Frequency}} occurrences, {{printf "%.0f%%" (automationPct .AutomationPotential)}})
{{end}}{{end}}
{{if .Transformations}}
## Recurring Transformations
{{range .Transformations}}
- ` + "`{{.Signature}}`" + ` ({{.Frequency}} times){{range .Examples}}
  - "{{.Original}}" -> "{{.Corrected}}" ({{.FieldPath}}){{end}}
{{end}}{{end}}
## Usage

Apply the rules in rules/ when extracting these fields. The examples/ files
hold before/after pairs suitable for few-shot prompting.
`))

type skillMDData struct {
	Name             string
	GeneratedAt      string
	TotalCorrections int
	PatternCount     int
	TopPatterns      []Pattern
	Automatable      []Pattern
	Transformations  []TransformationPattern
}

func (g *SkillGenerator) writeSkillMD(path, name string, explained []*Record, patterns []Pattern, transformations []TransformationPattern) error {
	var automatable []Pattern
	for _, p := range patterns {
		if p.AutomationPotential >= 0.7 {
			automatable = append(automatable, p)
		}
	}
	top := patterns
	if len(top) > 10 {
		top = top[:10]
	}
	if len(transformations) > 5 {
		transformations = transformations[:5]
	}

	var b strings.Builder
	err := skillMDTemplate.Execute(&b, skillMDData{
		Name:             name,
		GeneratedAt:      now().Format("2006-01-02"),
		TotalCorrections: len(explained),
		PatternCount:     len(patterns),
		TopPatterns:      top,
		Automatable:      automatable,
		Transformations:  transformations,
	})
	if err != nil {
		return fmt.Errorf("render skill: %w", err)
	}
	return store.WriteAtomic(path, []byte(b.String()))
}

// writeRules emits one rule file per category that has at least
// DefaultMinOccurrences corrections and a detected pattern.
func (g *SkillGenerator) writeRules(rulesDir string, explained []*Record, patterns []Pattern) error {
	byCategory := map[Category][]*Record{}
	for _, r := range explained {
		byCategory[r.Explanation.Category] = append(byCategory[r.Explanation.Category], r)
	}

	for category, members := range byCategory {
		if len(members) < DefaultMinOccurrences {
			continue
		}
		var related []Pattern
		for _, p := range patterns {
			if p.Category == category {
				related = append(related, p)
			}
		}
		if len(related) == 0 {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "# Rules: %s\n\n", category)
		fmt.Fprintf(&b, "Derived from %d corrections.\n\n", len(members))
		for _, p := range related {
			fmt.Fprintf(&b, "## %s\n\n", p.Description)
			fmt.Fprintf(&b, "Seen %d times. ", p.Frequency)
			fmt.Fprintf(&b, "Examples:\n\n")
			for _, ex := range p.Examples {
				fmt.Fprintf(&b, "- `%s`: %q -> %q\n", ex.FieldPath, ex.Original, ex.Corrected)
			}
			b.WriteString("\n")
		}

		name := strings.ReplaceAll(string(category), "_", "-") + ".md"
		if err := store.WriteAtomic(filepath.Join(rulesDir, name), []byte(b.String())); err != nil {
			return err
		}
	}
	return nil
}

// correctionExample is the JSON shape of one few-shot example.
type correctionExample struct {
	DocumentID  string `json:"document_id"`
	FieldPath   string `json:"field_path"`
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation,omitempty"`
	Category    string `json:"category,omitempty"`
}

func (g *SkillGenerator) writeExamples(examplesDir string, explained []*Record, patterns []Pattern) error {
	recent := make([]*Record, len(explained))
	copy(recent, explained)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Correction.Timestamp.After(recent[j].Correction.Timestamp)
	})
	if len(recent) > 20 {
		recent = recent[:20]
	}

	general := make([]correctionExample, 0, len(recent))
	for _, r := range recent {
		general = append(general, exampleFromRecord(r))
	}
	if err := writeJSONFile(filepath.Join(examplesDir, "corrections.json"), general); err != nil {
		return err
	}

	byPattern := map[string][]correctionExample{}
	byID := map[string]*Record{}
	for _, r := range explained {
		byID[r.Correction.ID] = r
	}
	top := patterns
	if len(top) > 5 {
		top = top[:5]
	}
	for _, p := range top {
		for _, id := range p.CorrectionIDs {
			if len(byPattern[p.ID]) >= 3 {
				break
			}
			if r, ok := byID[id]; ok {
				byPattern[p.ID] = append(byPattern[p.ID], exampleFromRecord(r))
			}
		}
	}
	return writeJSONFile(filepath.Join(examplesDir, "patterns.json"), byPattern)
}

var validationScriptTemplate = template.Must(template.New("validate").Parse(`#!/usr/bin/env python3
"""Validation helpers generated from recurring correction transformations."""

KNOWN_TRANSFORMATIONS = [
{{- range .}}
    ({{printf "%q" .Signature}}, {{.Frequency}}),
{{- end}}
]


def normalize_decimal_separator(value):
    """1234,56 -> 1234.56"""
    if "," in value and "." not in value:
        return value.replace(",", ".")
    return value


def normalize_spaces(value):
    return " ".join(value.split())


def validate_extraction(field, value):
    """Return (is_clean, normalized) for one extracted value."""
    normalized = normalize_spaces(normalize_decimal_separator(value))
    return normalized == value, normalized


def main():
    import sys

    for raw in sys.argv[1:]:
        ok, normalized = validate_extraction("", raw)
        status = "ok" if ok else "normalized"
        print(f"{raw} -> {normalized} ({status})")


if __name__ == "__main__":
    main()
`))

// writeValidationScript renders an executable helper script that re-applies
// the most common value normalizations seen in the store.
func (g *SkillGenerator) writeValidationScript(path string, transformations []TransformationPattern) error {
	if len(transformations) > 5 {
		transformations = transformations[:5]
	}
	var b strings.Builder
	if err := validationScriptTemplate.Execute(&b, transformations); err != nil {
		return fmt.Errorf("render validation script: %w", err)
	}
	if err := store.WriteAtomic(path, []byte(b.String())); err != nil {
		return err
	}
	return os.Chmod(path, 0o755)
}

func (g *SkillGenerator) writeReadme(path, name string, explained []*Record, patterns []Pattern) error {
	high, automatable := 0, 0
	for _, p := range patterns {
		if p.Impact == ImpactHigh {
			high++
		}
		if p.AutomationPotential >= 0.7 {
			automatable++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, "Generated skill package.\n\n")
	fmt.Fprintf(&b, "- Corrections analyzed: %d\n", len(explained))
	fmt.Fprintf(&b, "- Patterns detected: %d (%d high impact)\n", len(patterns), high)
	fmt.Fprintf(&b, "- Automation candidates: %d\n\n", automatable)
	b.WriteString("Layout:\n\n")
	b.WriteString("- `SKILL.md`: the skill definition\n")
	b.WriteString("- `rules/`: one rule file per correction category\n")
	b.WriteString("- `examples/`: few-shot examples as JSON\n")
	b.WriteString("- `scripts/`: validation helpers for extracted values\n")
	return store.WriteAtomic(path, []byte(b.String()))
}

func exampleFromRecord(r *Record) correctionExample {
	ex := correctionExample{
		DocumentID: r.Correction.DocumentID,
		FieldPath:  r.Correction.FieldPath,
		Original:   r.Correction.OriginalValue,
		Corrected:  r.Correction.CorrectedValue,
	}
	if r.Explanation != nil {
		ex.Explanation = r.Explanation.Text
		ex.Category = string(r.Explanation.Category)
	}
	return ex
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return store.WriteAtomic(path, append(data, '\n'))
}
