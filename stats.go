package iterata

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Statistics is a point-in-time aggregate over the full record set. All
// counts are zero-valued for an empty store; no field requires guarding
// against division by zero downstream.
type Statistics struct {
	TotalCorrections     int     `json:"total_corrections"`
	CorrectionsExplained int     `json:"corrections_explained"`
	CorrectionsPending   int     `json:"corrections_pending"`
	PatternsCount        int     `json:"patterns_count"`
	ExplanationRate      float64 `json:"explanation_rate"`

	Categories map[Category]CategoryStats `json:"categories,omitempty"`
	TopFields  map[string]int             `json:"top_fields,omitempty"`

	Time       TimeStats       `json:"time_stats"`
	Correctors CorrectorStats  `json:"corrector_stats"`
	Confidence ConfidenceStats `json:"confidence_stats"`
	Documents  DocumentStats   `json:"document_stats"`
}

// CategoryStats summarizes explained corrections within one category.
type CategoryStats struct {
	Count          int     `json:"count"`
	MeanAutomation float64 `json:"mean_automation_potential"`
}

// TimeStats buckets correction activity over time. FirstCorrection and
// LastCorrection are zero for an empty store.
type TimeStats struct {
	FirstCorrection time.Time      `json:"first_correction"`
	LastCorrection  time.Time      `json:"last_correction"`
	Last7Days       int            `json:"corrections_last_7_days"`
	Last30Days      int            `json:"corrections_last_30_days"`
	DaysSinceFirst  int            `json:"days_since_first"`
	AveragePerDay   float64        `json:"average_per_day"`
	PerDay          map[string]int `json:"per_day,omitempty"`
	PerWeek         map[string]int `json:"per_week,omitempty"`
}

// CorrectorStats summarizes activity per corrector. Corrections without a
// corrector id are not counted here.
type CorrectorStats struct {
	TotalCorrectors int            `json:"total_correctors"`
	ByCorrector     map[string]int `json:"corrections_by_corrector,omitempty"`
	MostActive      string         `json:"most_active_corrector,omitempty"`
}

// ConfidenceStats summarizes the confidence-before distribution for the
// corrections that carry one.
type ConfidenceStats struct {
	WithConfidence int     `json:"corrections_with_confidence"`
	Min            float64 `json:"min_confidence"`
	Mean           float64 `json:"mean_confidence"`
	Max            float64 `json:"max_confidence"`
	LowConfidence  int     `json:"low_confidence_corrections"`
	LowRate        float64 `json:"low_confidence_rate"`
}

// DocumentStats summarizes corrections per source document.
type DocumentStats struct {
	TotalDocuments int            `json:"total_documents"`
	PerDocument    map[string]int `json:"corrections_per_document,omitempty"`
	AveragePerDoc  float64        `json:"average_corrections_per_document"`
}

// Recommendation is one actionable suggestion derived from current state.
type Recommendation struct {
	Priority  string           `json:"priority"`
	Type      string           `json:"type"`
	Title     string           `json:"title"`
	Reason    string           `json:"reason"`
	PatternID string           `json:"pattern_id,omitempty"`
	Examples  []PatternExample `json:"examples,omitempty"`
}

// Thresholds for the recommendation heuristics.
const (
	recommendAutomationMin      = 0.7
	recommendTransformationMin  = 10
	recommendTransformationBase = 5
	recommendBacklogMax         = 10
	lowConfidenceThreshold      = 0.5
)

// topFieldsLimit bounds the TopFields map in Statistics.
const topFieldsLimit = 10

// Analyzer computes statistics and recommendations over a store. It reads
// through a Detector so pattern-derived metrics use the same grouping rules
// everywhere.
type Analyzer struct {
	storage        Storage
	detector       *Detector
	minOccurrences int
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerMinOccurrences overrides the minimum group size used for
// pattern-derived metrics.
func WithAnalyzerMinOccurrences(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.minOccurrences = n
		}
	}
}

// NewAnalyzer creates an Analyzer over storage.
func NewAnalyzer(storage Storage, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		storage:        storage,
		detector:       NewDetector(storage),
		minOccurrences: DefaultMinOccurrences,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeStats aggregates the full record set. Malformed records are skipped
// by the store; zero records yields a fully zero-valued Statistics.
func (a *Analyzer) ComputeStats() (*Statistics, error) {
	all, err := a.storage.LoadCorrections(FilterAll)
	if err != nil {
		return nil, err
	}
	patterns, err := a.detector.DetectPatterns(a.minOccurrences)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalCorrections: len(all),
		PatternsCount:    len(patterns),
	}

	automationByCategory := map[Category]float64{}
	fields := map[string]int{}
	for _, r := range all {
		fields[r.Correction.FieldPath]++
		if !r.Explained() {
			continue
		}
		stats.CorrectionsExplained++
		if stats.Categories == nil {
			stats.Categories = map[Category]CategoryStats{}
		}
		cs := stats.Categories[r.Explanation.Category]
		cs.Count++
		stats.Categories[r.Explanation.Category] = cs
		automationByCategory[r.Explanation.Category] += r.Explanation.AutomationPotential
	}
	stats.CorrectionsPending = stats.TotalCorrections - stats.CorrectionsExplained
	if stats.TotalCorrections > 0 {
		stats.ExplanationRate = float64(stats.CorrectionsExplained) / float64(stats.TotalCorrections)
	}
	for cat, cs := range stats.Categories {
		cs.MeanAutomation = round3(automationByCategory[cat] / float64(cs.Count))
		stats.Categories[cat] = cs
	}
	stats.TopFields = topCounts(fields, topFieldsLimit)

	stats.Time = computeTimeStats(all, time.Now().UTC())
	stats.Correctors = computeCorrectorStats(all)
	stats.Confidence = computeConfidenceStats(all)
	stats.Documents = computeDocumentStats(all)
	return stats, nil
}

// Recommendations derives an ordered list of suggested actions. Output is
// deterministic for identical store state: high priority first, then by
// automation potential, then by recency of the driving pattern.
func (a *Analyzer) Recommendations() ([]Recommendation, error) {
	patterns, err := a.detector.DetectPatterns(a.minOccurrences)
	if err != nil {
		return nil, err
	}
	transformations, err := a.detector.DetectTransformationPatterns(recommendTransformationBase)
	if err != nil {
		return nil, err
	}
	pending, err := a.storage.ListPending()
	if err != nil {
		return nil, err
	}

	type ranked struct {
		rec        Recommendation
		automation float64
		lastSeen   time.Time
	}
	var out []ranked

	for _, p := range patterns {
		if p.Impact != ImpactHigh {
			continue
		}
		if p.AutomationPotential >= recommendAutomationMin {
			out = append(out, ranked{
				rec: Recommendation{
					Priority:  "high",
					Type:      "automation",
					Title:     "Automate: " + p.Description,
					Reason:    fmt.Sprintf("high-impact pattern (%d occurrences) with %.0f%% automation potential", p.Frequency, p.AutomationPotential*100),
					PatternID: p.ID,
				},
				automation: p.AutomationPotential,
				lastSeen:   p.LastSeen,
			})
		} else {
			out = append(out, ranked{
				rec: Recommendation{
					Priority:  "high",
					Type:      "investigation",
					Title:     "Investigate: " + p.Description,
					Reason:    fmt.Sprintf("high-impact pattern (%d occurrences) needs deeper analysis", p.Frequency),
					PatternID: p.ID,
				},
				automation: p.AutomationPotential,
				lastSeen:   p.LastSeen,
			})
		}
	}

	for i, tp := range transformations {
		if i >= 3 || tp.Frequency < recommendTransformationMin {
			continue
		}
		examples := tp.Examples
		if len(examples) > 3 {
			examples = examples[:3]
		}
		out = append(out, ranked{
			rec: Recommendation{
				Priority: "medium",
				Type:     "rule",
				Title:    "Create a rule: " + tp.Signature,
				Reason:   fmt.Sprintf("recurring transformation (%d times)", tp.Frequency),
				Examples: examples,
			},
		})
	}

	if len(pending) > recommendBacklogMax {
		out = append(out, ranked{
			rec: Recommendation{
				Priority: "medium",
				Type:     "action",
				Title:    "Explain pending corrections",
				Reason:   fmt.Sprintf("%d corrections are waiting for an explanation", len(pending)),
			},
		})
	}

	priorityRank := map[string]int{"high": 0, "medium": 1, "low": 2}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityRank[out[i].rec.Priority], priorityRank[out[j].rec.Priority]
		if pi != pj {
			return pi < pj
		}
		if out[i].automation != out[j].automation {
			return out[i].automation > out[j].automation
		}
		return out[i].lastSeen.After(out[j].lastSeen)
	})

	recs := make([]Recommendation, len(out))
	for i, r := range out {
		recs[i] = r.rec
	}
	return recs, nil
}

// Summary renders a short human-readable overview of the current statistics.
func (a *Analyzer) Summary() (string, error) {
	stats, err := a.ComputeStats()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Correction Statistics ===\n\n")
	fmt.Fprintf(&b, "Total Corrections: %d\n", stats.TotalCorrections)
	fmt.Fprintf(&b, "  - Explained: %d\n", stats.CorrectionsExplained)
	fmt.Fprintf(&b, "  - Pending: %d\n", stats.CorrectionsPending)
	fmt.Fprintf(&b, "  - Explanation Rate: %.1f%%\n", stats.ExplanationRate*100)
	fmt.Fprintf(&b, "\nPatterns Detected: %d\n", stats.PatternsCount)

	if len(stats.Categories) > 0 {
		fmt.Fprintf(&b, "\nTop Categories:\n")
		for _, cat := range sortedByCount(stats.Categories) {
			fmt.Fprintf(&b, "  - %s: %d\n", cat, stats.Categories[cat].Count)
		}
	}
	if len(stats.TopFields) > 0 {
		fmt.Fprintf(&b, "\nTop Fields with Corrections:\n")
		for _, kv := range sortedCounts(stats.TopFields) {
			fmt.Fprintf(&b, "  - %s: %d\n", kv.key, kv.count)
		}
	}
	if stats.Time.Last7Days > 0 {
		fmt.Fprintf(&b, "\nRecent Activity:\n")
		fmt.Fprintf(&b, "  - Last 7 days: %d\n", stats.Time.Last7Days)
		fmt.Fprintf(&b, "  - Last 30 days: %d\n", stats.Time.Last30Days)
	}
	return b.String(), nil
}

func computeTimeStats(records []*Record, now time.Time) TimeStats {
	ts := TimeStats{}
	if len(records) == 0 {
		return ts
	}

	ts.PerDay = map[string]int{}
	ts.PerWeek = map[string]int{}
	first := records[0].Correction.Timestamp
	last := first
	for _, r := range records {
		t := r.Correction.Timestamp
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
		if now.Sub(t) <= 7*24*time.Hour {
			ts.Last7Days++
		}
		if now.Sub(t) <= 30*24*time.Hour {
			ts.Last30Days++
		}
		ts.PerDay[t.Format("2006-01-02")]++
		year, week := t.ISOWeek()
		ts.PerWeek[fmt.Sprintf("%04d-W%02d", year, week)]++
	}

	ts.FirstCorrection = first
	ts.LastCorrection = last
	ts.DaysSinceFirst = int(now.Sub(first).Hours() / 24)
	days := ts.DaysSinceFirst
	if days < 1 {
		days = 1
	}
	ts.AveragePerDay = round3(float64(len(records)) / float64(days))
	return ts
}

func computeCorrectorStats(records []*Record) CorrectorStats {
	cs := CorrectorStats{}
	for _, r := range records {
		if id := r.Correction.CorrectorID; id != "" {
			if cs.ByCorrector == nil {
				cs.ByCorrector = map[string]int{}
			}
			cs.ByCorrector[id]++
		}
	}
	cs.TotalCorrectors = len(cs.ByCorrector)
	best := ""
	for id, n := range cs.ByCorrector {
		if best == "" || n > cs.ByCorrector[best] || (n == cs.ByCorrector[best] && id < best) {
			best = id
		}
	}
	cs.MostActive = best
	return cs
}

func computeConfidenceStats(records []*Record) ConfidenceStats {
	cs := ConfidenceStats{}
	var sum float64
	for _, r := range records {
		conf := r.Correction.ConfidenceBefore
		if conf == nil {
			continue
		}
		if cs.WithConfidence == 0 {
			cs.Min, cs.Max = *conf, *conf
		}
		cs.WithConfidence++
		sum += *conf
		if *conf < cs.Min {
			cs.Min = *conf
		}
		if *conf > cs.Max {
			cs.Max = *conf
		}
		if *conf < lowConfidenceThreshold {
			cs.LowConfidence++
		}
	}
	if cs.WithConfidence > 0 {
		cs.Mean = round3(sum / float64(cs.WithConfidence))
		cs.LowRate = round3(float64(cs.LowConfidence) / float64(cs.WithConfidence))
	}
	return cs
}

func computeDocumentStats(records []*Record) DocumentStats {
	ds := DocumentStats{}
	counts := map[string]int{}
	for _, r := range records {
		counts[r.Correction.DocumentID]++
	}
	ds.TotalDocuments = len(counts)
	if len(counts) > 0 {
		ds.PerDocument = counts
		ds.AveragePerDoc = round3(float64(len(records)) / float64(len(counts)))
	}
	return ds
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders map entries by descending count, ties on key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, n := range m {
		out = append(out, keyCount{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func sortedByCount(m map[Category]CategoryStats) []Category {
	out := make([]Category, 0, len(m))
	for cat := range m {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool {
		if m[out[i]].Count != m[out[j]].Count {
			return m[out[i]].Count > m[out[j]].Count
		}
		return out[i] < out[j]
	})
	return out
}

func topCounts(m map[string]int, limit int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	ranked := sortedCounts(m)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make(map[string]int, len(ranked))
	for _, kv := range ranked {
		out[kv.key] = kv.count
	}
	return out
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
