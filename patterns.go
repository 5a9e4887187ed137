package iterata

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Impact thresholds scale with the explained record count: a pattern is high
// impact when its frequency reaches 15% of the total, medium at 5%, with
// floors so tiny stores still discriminate and ceilings so large stores do
// not demand unbounded frequencies.
const (
	ImpactHighFraction   = 0.15
	ImpactMediumFraction = 0.05

	ImpactHighFloor   = 5
	ImpactMediumFloor = 3
	ImpactHighCeil    = 20
	ImpactMediumCeil  = 10
)

// ImpactThresholds returns the frequency thresholds for high and medium
// impact given the total explained record count.
func ImpactThresholds(total int) (high, medium int) {
	high = int(math.Ceil(float64(total) * ImpactHighFraction))
	if high < ImpactHighFloor {
		high = ImpactHighFloor
	}
	if high > ImpactHighCeil {
		high = ImpactHighCeil
	}
	medium = int(math.Ceil(float64(total) * ImpactMediumFraction))
	if medium < ImpactMediumFloor {
		medium = ImpactMediumFloor
	}
	if medium > ImpactMediumCeil {
		medium = ImpactMediumCeil
	}
	return high, medium
}

// ImpactFor bands a pattern frequency against the thresholds for total.
func ImpactFor(frequency, total int) Impact {
	high, medium := ImpactThresholds(total)
	switch {
	case frequency >= high:
		return ImpactHigh
	case frequency >= medium:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Detector derives patterns from stored records. Detection is a pure read:
// nothing is persisted, and identical record sets always produce identical
// output in identical order.
type Detector struct {
	storage Storage
	rules   []SignatureRule
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithSignatureRules replaces the default transformation signature rules.
func WithSignatureRules(rules []SignatureRule) DetectorOption {
	return func(d *Detector) {
		d.rules = rules
	}
}

// NewDetector creates a Detector reading from storage.
func NewDetector(storage Storage, opts ...DetectorOption) *Detector {
	d := &Detector{
		storage: storage,
		rules:   DefaultSignatureRules(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectPatterns groups explained records by (category, subcategory) and
// returns the groups of at least minOccurrences members. The subcategory of a
// record defaults to its normalized field path when the explanation carries
// none. A minOccurrences of zero or one yields one pattern per distinct key.
func (d *Detector) DetectPatterns(minOccurrences int) ([]Pattern, error) {
	records, err := d.explainedRecords()
	if err != nil {
		return nil, err
	}
	return d.buildPatterns(records, minOccurrences, func(r *Record) (Category, string) {
		return r.Explanation.Category, recordSubcategory(r)
	}), nil
}

// DetectPatternsByField re-groups explained records purely by field path,
// ignoring category. Each qualifying field maps to a single pattern covering
// every explained correction on that field; the pattern carries the most
// frequent category among its members.
func (d *Detector) DetectPatternsByField(minOccurrences int) (map[string][]Pattern, error) {
	records, err := d.explainedRecords()
	if err != nil {
		return nil, err
	}
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	byField := map[string][]*Record{}
	for _, r := range records {
		byField[r.Correction.FieldPath] = append(byField[r.Correction.FieldPath], r)
	}

	out := map[string][]Pattern{}
	for field, members := range byField {
		if len(members) < minOccurrences {
			continue
		}
		p := assemblePattern(dominantCategory(members), normalizeFieldPath(field), members, len(records))
		p.ID = fieldPatternID(field)
		out[field] = []Pattern{p}
	}
	return out, nil
}

// dominantCategory picks the most frequent category among members. Count ties
// break on the lexicographically smaller category so output is deterministic.
func dominantCategory(members []*Record) Category {
	counts := map[Category]int{}
	for _, m := range members {
		counts[m.Explanation.Category]++
	}
	var best Category
	for cat, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && cat < best) {
			best = cat
		}
	}
	return best
}

// DetectTransformationPatterns groups explained records by the shape of the
// value change, normalized through the signature rules.
func (d *Detector) DetectTransformationPatterns(minOccurrences int) ([]TransformationPattern, error) {
	records, err := d.explainedRecords()
	if err != nil {
		return nil, err
	}
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	groups := map[string][]*Record{}
	for _, r := range records {
		sig := InferSignature(d.rules, r.Correction.OriginalValue, r.Correction.CorrectedValue)
		groups[sig] = append(groups[sig], r)
	}

	var out []TransformationPattern
	for sig, members := range groups {
		if len(members) < minOccurrences {
			continue
		}
		tp := TransformationPattern{
			Signature: sig,
			Frequency: len(members),
		}
		for _, m := range members {
			tp.CorrectionIDs = append(tp.CorrectionIDs, m.Correction.ID)
			if len(tp.Examples) < MaxPatternExamples {
				tp.Examples = append(tp.Examples, PatternExample{
					Original:  m.Correction.OriginalValue,
					Corrected: m.Correction.CorrectedValue,
					FieldPath: m.Correction.FieldPath,
				})
			}
		}
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Signature < out[j].Signature
	})
	return out, nil
}

// PatternSummary is a one-shot overview of all detected patterns.
type PatternSummary struct {
	TotalPatterns          int              `json:"total_patterns"`
	PatternsByCategory     map[Category]int `json:"patterns_by_category"`
	HighImpact             int              `json:"high_impact"`
	MediumImpact           int              `json:"medium_impact"`
	LowImpact              int              `json:"low_impact"`
	HighlyAutomatable      int              `json:"highly_automatable"`
	FieldsWithPatterns     int              `json:"fields_with_patterns"`
	TransformationPatterns int              `json:"transformation_patterns"`
	TopPatterns            []Pattern        `json:"top_patterns,omitempty"`
	MostAutomatable        []Pattern        `json:"most_automatable,omitempty"`
}

// Summary computes an overview across category, field, and transformation
// groupings using the default minimum occurrences.
func (d *Detector) Summary() (*PatternSummary, error) {
	patterns, err := d.DetectPatterns(DefaultMinOccurrences)
	if err != nil {
		return nil, err
	}
	byField, err := d.DetectPatternsByField(DefaultMinOccurrences)
	if err != nil {
		return nil, err
	}
	transformations, err := d.DetectTransformationPatterns(DefaultMinOccurrences)
	if err != nil {
		return nil, err
	}

	s := &PatternSummary{
		TotalPatterns:          len(patterns),
		PatternsByCategory:     map[Category]int{},
		FieldsWithPatterns:     len(byField),
		TransformationPatterns: len(transformations),
	}
	for _, p := range patterns {
		s.PatternsByCategory[p.Category]++
		switch p.Impact {
		case ImpactHigh:
			s.HighImpact++
		case ImpactMedium:
			s.MediumImpact++
		default:
			s.LowImpact++
		}
		if p.AutomationPotential >= 0.8 {
			s.HighlyAutomatable++
		}
	}

	s.TopPatterns = topN(patterns, MaxPatternExamples)
	byAutomation := make([]Pattern, len(patterns))
	copy(byAutomation, patterns)
	sort.SliceStable(byAutomation, func(i, j int) bool {
		return byAutomation[i].AutomationPotential > byAutomation[j].AutomationPotential
	})
	s.MostAutomatable = topN(byAutomation, MaxPatternExamples)
	return s, nil
}

// explainedRecords loads every explained record, skipping malformed ones.
func (d *Detector) explainedRecords() ([]*Record, error) {
	return d.storage.LoadCorrections(FilterExplained)
}

// buildPatterns groups records by keyFn, filters by minOccurrences, and
// assembles sorted patterns.
func (d *Detector) buildPatterns(records []*Record, minOccurrences int, keyFn func(*Record) (Category, string)) []Pattern {
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	type groupKey struct {
		category    Category
		subcategory string
	}
	groups := map[groupKey][]*Record{}
	for _, r := range records {
		cat, sub := keyFn(r)
		groups[groupKey{cat, sub}] = append(groups[groupKey{cat, sub}], r)
	}

	total := len(records)
	var out []Pattern
	for key, members := range groups {
		if len(members) < minOccurrences {
			continue
		}
		out = append(out, assemblePattern(key.category, key.subcategory, members, total))
	}
	sortPatterns(out)
	return out
}

// assemblePattern builds one Pattern from its member records. Members arrive
// in storage order, so example sampling and first/last seen are stable.
func assemblePattern(category Category, subcategory string, members []*Record, total int) Pattern {
	p := Pattern{
		ID:          patternID(category, subcategory),
		Category:    category,
		Subcategory: subcategory,
		Frequency:   len(members),
		Impact:      ImpactFor(len(members), total),
		FirstSeen:   members[0].Correction.Timestamp,
		LastSeen:    members[0].Correction.Timestamp,
	}

	var automationSum float64
	for _, m := range members {
		p.CorrectionIDs = append(p.CorrectionIDs, m.Correction.ID)
		automationSum += m.Explanation.AutomationPotential
		if ts := m.Correction.Timestamp; ts.Before(p.FirstSeen) {
			p.FirstSeen = ts
		} else if ts.After(p.LastSeen) {
			p.LastSeen = ts
		}
		if len(p.Examples) < MaxPatternExamples {
			p.Examples = append(p.Examples, PatternExample{
				Original:  m.Correction.OriginalValue,
				Corrected: m.Correction.CorrectedValue,
				FieldPath: m.Correction.FieldPath,
			})
		}
	}
	p.AutomationPotential = automationSum / float64(len(members))
	p.Description = describePattern(subcategory, members)
	return p
}

// describePattern picks the most common explanation text among members, or a
// generic description when no member carries one. Count ties break on the
// lexicographically smaller text so output is deterministic.
func describePattern(subcategory string, members []*Record) string {
	counts := map[string]int{}
	for _, m := range members {
		if text := strings.TrimSpace(m.Explanation.Text); text != "" {
			counts[text]++
		}
	}
	var best string
	for text, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && text < best) {
			best = text
		}
	}
	if best == "" {
		return fmt.Sprintf("Recurring correction on %s", subcategory)
	}
	return fmt.Sprintf("%s (%s)", best, subcategory)
}

// recordSubcategory resolves the grouping subcategory for one record: the
// explanation's subcategory when present, else the normalized field path.
func recordSubcategory(r *Record) string {
	if sub := strings.TrimSpace(r.Explanation.Subcategory); sub != "" {
		return sub
	}
	return normalizeFieldPath(r.Correction.FieldPath)
}

var indexedPathSegment = regexp.MustCompile(`\[\d+\]`)

// normalizeFieldPath collapses positional indexes so corrections on
// items[0].price and items[7].price group together.
func normalizeFieldPath(path string) string {
	return indexedPathSegment.ReplaceAllString(strings.TrimSpace(path), "[]")
}

var patternIDSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

func fieldPatternID(field string) string {
	f := patternIDSanitizer.ReplaceAllString(strings.ToLower(field), "_")
	f = strings.Trim(f, "_")
	if f == "" {
		f = "general"
	}
	return "pattern_field_" + f
}

func patternID(category Category, subcategory string) string {
	sub := patternIDSanitizer.ReplaceAllString(strings.ToLower(subcategory), "_")
	sub = strings.Trim(sub, "_")
	if sub == "" {
		sub = "general"
	}
	return fmt.Sprintf("pattern_%s_%s", category, sub)
}

// sortPatterns orders by frequency descending, then automation potential
// descending, then category ascending, then subcategory ascending.
func sortPatterns(patterns []Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if a.AutomationPotential != b.AutomationPotential {
			return a.AutomationPotential > b.AutomationPotential
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Subcategory < b.Subcategory
	})
}

func topN(patterns []Pattern, n int) []Pattern {
	if len(patterns) <= n {
		return append([]Pattern(nil), patterns...)
	}
	return append([]Pattern(nil), patterns[:n]...)
}
