package iterata

import (
	"strings"
	"testing"
	"time"
)

func TestComputeStatsEmptyStore(t *testing.T) {
	s := newTestStore(t)
	a := NewAnalyzer(s)

	stats, err := a.ComputeStats()
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if stats.TotalCorrections != 0 || stats.CorrectionsExplained != 0 || stats.CorrectionsPending != 0 {
		t.Errorf("counts = %d/%d/%d, want all zero", stats.TotalCorrections, stats.CorrectionsExplained, stats.CorrectionsPending)
	}
	if stats.ExplanationRate != 0 {
		t.Errorf("ExplanationRate = %v, want 0", stats.ExplanationRate)
	}
	if stats.PatternsCount != 0 {
		t.Errorf("PatternsCount = %v, want 0", stats.PatternsCount)
	}
	if !stats.Time.FirstCorrection.IsZero() {
		t.Error("FirstCorrection should be zero for empty store")
	}
	if stats.Documents.TotalDocuments != 0 {
		t.Errorf("TotalDocuments = %d, want 0", stats.Documents.TotalDocuments)
	}
}

func TestComputeStatsMinOccurrencesOption(t *testing.T) {
	s := newTestStore(t)
	seedExplained(t, s, 2, "inv.pdf", "total_amount", "1,5", "1.5", "sep", 0.9)

	stats, err := NewAnalyzer(s).ComputeStats()
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if stats.PatternsCount != 0 {
		t.Errorf("PatternsCount = %d, want 0 below the default minimum", stats.PatternsCount)
	}

	stats, err = NewAnalyzer(s, WithAnalyzerMinOccurrences(2)).ComputeStats()
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if stats.PatternsCount != 1 {
		t.Errorf("PatternsCount = %d, want 1 with lowered minimum", stats.PatternsCount)
	}
}

func TestComputeStatsCountsAndRates(t *testing.T) {
	s := newTestStore(t)

	seedExplained(t, s, 3, "inv_001.pdf", "total_amount", "1,5", "1.5", "sep", 0.9)
	saveTestCorrection(t, s, "inv_002.pdf", "date", "01/15/2024", "2024-01-15")

	a := NewAnalyzer(s)
	stats, err := a.ComputeStats()
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}

	if stats.TotalCorrections != 4 {
		t.Errorf("TotalCorrections = %d, want 4", stats.TotalCorrections)
	}
	if stats.CorrectionsExplained != 3 {
		t.Errorf("CorrectionsExplained = %d, want 3", stats.CorrectionsExplained)
	}
	if stats.CorrectionsPending != 1 {
		t.Errorf("CorrectionsPending = %d, want 1", stats.CorrectionsPending)
	}
	if stats.ExplanationRate != 0.75 {
		t.Errorf("ExplanationRate = %v, want 0.75", stats.ExplanationRate)
	}
	if stats.PatternsCount != 1 {
		t.Errorf("PatternsCount = %d, want 1", stats.PatternsCount)
	}

	cat, ok := stats.Categories[CategoryFormatting]
	if !ok {
		t.Fatal("expected formatting category stats")
	}
	if cat.Count != 3 {
		t.Errorf("formatting count = %d, want 3", cat.Count)
	}
	if cat.MeanAutomation != 0.9 {
		t.Errorf("formatting mean automation = %v, want 0.9", cat.MeanAutomation)
	}

	if stats.TopFields["total_amount"] != 3 || stats.TopFields["date"] != 1 {
		t.Errorf("TopFields = %v", stats.TopFields)
	}

	if stats.Documents.TotalDocuments != 2 {
		t.Errorf("TotalDocuments = %d, want 2", stats.Documents.TotalDocuments)
	}
	if stats.Documents.AveragePerDoc != 2 {
		t.Errorf("AveragePerDoc = %v, want 2", stats.Documents.AveragePerDoc)
	}
}

func TestComputeStatsConfidenceAndCorrectors(t *testing.T) {
	s := newTestStore(t)

	save := func(conf *float64, corrector string) {
		t.Helper()
		c := &Correction{
			DocumentID:       "inv.pdf",
			FieldPath:        "amount",
			OriginalValue:    "1",
			CorrectedValue:   "2",
			ConfidenceBefore: conf,
			CorrectorID:      corrector,
		}
		if _, err := s.SaveCorrection(c); err != nil {
			t.Fatalf("SaveCorrection: %v", err)
		}
	}
	f := func(v float64) *float64 { return &v }

	save(f(0.2), "alice")
	save(f(0.6), "alice")
	save(f(1.0), "bob")
	save(nil, "")

	a := NewAnalyzer(s)
	stats, err := a.ComputeStats()
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}

	conf := stats.Confidence
	if conf.WithConfidence != 3 {
		t.Errorf("WithConfidence = %d, want 3", conf.WithConfidence)
	}
	if conf.Min != 0.2 || conf.Max != 1.0 {
		t.Errorf("Min/Max = %v/%v, want 0.2/1.0", conf.Min, conf.Max)
	}
	if conf.Mean != 0.6 {
		t.Errorf("Mean = %v, want 0.6", conf.Mean)
	}
	if conf.LowConfidence != 1 {
		t.Errorf("LowConfidence = %d, want 1", conf.LowConfidence)
	}

	correctors := stats.Correctors
	if correctors.TotalCorrectors != 2 {
		t.Errorf("TotalCorrectors = %d, want 2", correctors.TotalCorrectors)
	}
	if correctors.MostActive != "alice" {
		t.Errorf("MostActive = %q, want alice", correctors.MostActive)
	}
	if correctors.ByCorrector["alice"] != 2 {
		t.Errorf("alice count = %d, want 2", correctors.ByCorrector["alice"])
	}
}

func TestComputeTimeStats(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	mk := func(ts time.Time) *Record {
		return &Record{Correction: Correction{Timestamp: ts}}
	}
	records := []*Record{
		mk(now.Add(-2 * time.Hour)),
		mk(now.Add(-3 * 24 * time.Hour)),
		mk(now.Add(-20 * 24 * time.Hour)),
		mk(now.Add(-40 * 24 * time.Hour)),
	}

	ts := computeTimeStats(records, now)
	if ts.Last7Days != 2 {
		t.Errorf("Last7Days = %d, want 2", ts.Last7Days)
	}
	if ts.Last30Days != 3 {
		t.Errorf("Last30Days = %d, want 3", ts.Last30Days)
	}
	if ts.DaysSinceFirst != 40 {
		t.Errorf("DaysSinceFirst = %d, want 40", ts.DaysSinceFirst)
	}
	if ts.AveragePerDay != 0.1 {
		t.Errorf("AveragePerDay = %v, want 0.1", ts.AveragePerDay)
	}
	if !ts.FirstCorrection.Equal(now.Add(-40 * 24 * time.Hour)) {
		t.Errorf("FirstCorrection = %v", ts.FirstCorrection)
	}
	if ts.PerDay["2024-06-15"] != 1 {
		t.Errorf("PerDay June 15 = %d, want 1", ts.PerDay["2024-06-15"])
	}
}

func TestRecommendationsBacklog(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < recommendBacklogMax+1; i++ {
		saveTestCorrection(t, s, "inv.pdf", "amount", "1", "2")
	}

	a := NewAnalyzer(s)
	recs, err := a.Recommendations()
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Type != "action" || recs[0].Priority != "medium" {
		t.Errorf("recommendation = %+v, want medium action", recs[0])
	}
}

func TestRecommendationsAutomation(t *testing.T) {
	s := newTestStore(t)
	// High impact (>= floor of 5) and above the automation cutoff.
	seedExplained(t, s, 6, "inv.pdf", "total_amount", "1,5", "1.5", "Decimal comma", 0.9)
	// High impact but low automation.
	seedExplained(t, s, 6, "inv.pdf", "vendor", "ACME corp", "Acme Corp", "Casing", 0.2)

	a := NewAnalyzer(s)
	recs, err := a.Recommendations()
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(recs) < 2 {
		t.Fatalf("got %d recommendations, want at least 2", len(recs))
	}
	if recs[0].Type != "automation" {
		t.Errorf("recs[0].Type = %q, want automation", recs[0].Type)
	}
	if recs[1].Type != "investigation" {
		t.Errorf("recs[1].Type = %q, want investigation", recs[1].Type)
	}
}

func TestAnalyzerSummary(t *testing.T) {
	s := newTestStore(t)
	seedExplained(t, s, 2, "inv.pdf", "amount", "1,5", "1.5", "sep", 0.5)

	a := NewAnalyzer(s)
	summary, err := a.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	for _, want := range []string{"Total Corrections: 2", "Explained: 2", "Pending: 0", "100.0%"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
