package iterata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestLoop(t *testing.T, mutate func(*Config), opts ...LoopOption) *Loop {
	t.Helper()
	cfg := Config{BasePath: filepath.Join(t.TempDir(), "corrections")}
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := NewLoop(cfg, opts...)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoopLogPending(t *testing.T) {
	l := newTestLoop(t, nil)

	rec, err := l.Log(context.Background(), LogParams{
		DocumentID: "invoice_001.pdf",
		FieldPath:  "total_amount",
		Original:   "1.234,56",
		Corrected:  "1234.56",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("Status = %q, want pending", rec.Status)
	}

	pending, err := l.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].Correction.ID != rec.Correction.ID {
		t.Errorf("pending id = %q, want %q", pending[0].Correction.ID, rec.Correction.ID)
	}
}

func TestLoopLogWithHumanExplanation(t *testing.T) {
	l := newTestLoop(t, nil)

	rec, err := l.Log(context.Background(), LogParams{
		DocumentID:  "invoice_001.pdf",
		FieldPath:   "total_amount",
		Original:    "1.234,56",
		Corrected:   "1234.56",
		Explanation: "European decimal format",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if rec.Status != StatusExplained {
		t.Fatalf("Status = %q, want explained", rec.Status)
	}
	if rec.Explanation.Text != "European decimal format" {
		t.Errorf("explanation text = %q", rec.Explanation.Text)
	}
	if rec.Explanation.Type != ExplanationHuman {
		t.Errorf("explanation type = %q, want human", rec.Explanation.Type)
	}
}

func TestLoopAutoExplain(t *testing.T) {
	l := newTestLoop(t, func(cfg *Config) {
		cfg.AutoExplain = true
		cfg.Backend.Provider = "mock"
	})

	rec, err := l.Log(context.Background(), LogParams{
		DocumentID: "invoice_001.pdf",
		FieldPath:  "total_amount",
		Original:   "1,5",
		Corrected:  "1.5",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if rec.Status != StatusExplained {
		t.Fatalf("Status = %q, want explained after auto-explain", rec.Status)
	}
	if rec.Explanation.ExplainerID != "mock" {
		t.Errorf("ExplainerID = %q, want mock", rec.Explanation.ExplainerID)
	}
	if rec.Explanation.CorrectionType != TypeFormatError {
		t.Errorf("CorrectionType = %q, want format_error", rec.Explanation.CorrectionType)
	}
}

func TestLoopExplainBackend(t *testing.T) {
	l := newTestLoop(t, nil, WithExplainer(&MockExplainer{}))

	rec, err := l.Log(context.Background(), LogParams{
		DocumentID: "inv.pdf",
		FieldPath:  "amount",
		Original:   "1,5",
		Corrected:  "1.5",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	explained, err := l.Explain(context.Background(), rec.Correction.ID, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if explained.Status != StatusExplained {
		t.Errorf("Status = %q, want explained", explained.Status)
	}

	// Explained is terminal.
	_, err = l.Explain(context.Background(), rec.Correction.ID, nil)
	var alreadyErr *AlreadyExplainedError
	if !errors.As(err, &alreadyErr) {
		t.Fatalf("second Explain error = %v, want *AlreadyExplainedError", err)
	}
	if alreadyErr.CorrectionID != rec.Correction.ID {
		t.Errorf("error id = %q, want %q", alreadyErr.CorrectionID, rec.Correction.ID)
	}
}

func TestLoopExplainFailureLeavesPending(t *testing.T) {
	backendErr := errors.New("model unavailable")
	l := newTestLoop(t, nil, WithExplainer(&MockExplainer{Err: backendErr}))

	rec, err := l.Log(context.Background(), LogParams{
		DocumentID: "inv.pdf",
		FieldPath:  "amount",
		Original:   "1",
		Corrected:  "2",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	_, err = l.Explain(context.Background(), rec.Correction.ID, nil)
	var expErr *ExplanationError
	if !errors.As(err, &expErr) {
		t.Fatalf("Explain error = %v, want *ExplanationError", err)
	}
	if !errors.Is(err, backendErr) {
		t.Error("ExplanationError should wrap the backend error")
	}

	got, err := l.Get(rec.Correction.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("Status after failed explain = %q, want pending", got.Status)
	}
}

func TestLoopExplainPending(t *testing.T) {
	l := newTestLoop(t, nil, WithExplainer(&MockExplainer{}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.Log(ctx, LogParams{
			DocumentID: "inv.pdf",
			FieldPath:  "amount",
			Original:   "1,5",
			Corrected:  "1.5",
		}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	explained, failures, err := l.ExplainPending(ctx)
	if err != nil {
		t.Fatalf("ExplainPending: %v", err)
	}
	if explained != 3 {
		t.Errorf("explained = %d, want 3", explained)
	}
	if len(failures) != 0 {
		t.Errorf("failures = %v, want none", failures)
	}

	pending, err := l.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d, want 0", len(pending))
	}
}

func TestLoopExplainPendingCollectsFailures(t *testing.T) {
	backendErr := errors.New("model unavailable")
	l := newTestLoop(t, nil, WithExplainer(&MockExplainer{Err: backendErr}))

	ctx := context.Background()
	var ids []string
	for i := 0; i < 2; i++ {
		rec, err := l.Log(ctx, LogParams{
			DocumentID: "inv.pdf",
			FieldPath:  "amount",
			Original:   "1",
			Corrected:  "2",
		})
		if err != nil {
			t.Fatalf("Log: %v", err)
		}
		ids = append(ids, rec.Correction.ID)
	}

	explained, failures, err := l.ExplainPending(ctx)
	if err != nil {
		t.Fatalf("ExplainPending: %v", err)
	}
	if explained != 0 {
		t.Errorf("explained = %d, want 0", explained)
	}
	if len(failures) != 2 {
		t.Fatalf("len(failures) = %d, want 2", len(failures))
	}
	for _, id := range ids {
		if !errors.Is(failures[id], backendErr) {
			t.Errorf("failure for %s = %v, want wrapped backend error", id, failures[id])
		}
	}
}

func TestLoopExplainPendingNoExplainer(t *testing.T) {
	l := newTestLoop(t, nil)

	_, _, err := l.ExplainPending(context.Background())
	if !errors.Is(err, ErrNoExplainer) {
		t.Fatalf("err = %v, want ErrNoExplainer", err)
	}
}

func TestLoopCheckReadiness(t *testing.T) {
	l := newTestLoop(t, func(cfg *Config) {
		cfg.MinCorrectionsForSkill = 25
	})

	ctx := context.Background()
	log := func(n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			if _, err := l.Log(ctx, LogParams{
				DocumentID:  "inv.pdf",
				FieldPath:   "total_amount",
				Original:    "1,5",
				Corrected:   "1.5",
				Explanation: "Decimal comma",
			}); err != nil {
				t.Fatalf("Log: %v", err)
			}
		}
	}

	log(24)
	r, err := l.CheckReadiness()
	if err != nil {
		t.Fatalf("CheckReadiness: %v", err)
	}
	if r.Ready {
		t.Error("should not be ready at 24/25")
	}
	if r.Reason != "not enough explained corrections (24/25)" {
		t.Errorf("Reason = %q", r.Reason)
	}

	log(1)
	r, err = l.CheckReadiness()
	if err != nil {
		t.Fatalf("CheckReadiness: %v", err)
	}
	if !r.Ready {
		t.Fatalf("should be ready at 25/25 with patterns, reason: %s", r.Reason)
	}
	if r.CorrectionsCount != 25 || r.PatternsCount != 1 {
		t.Errorf("counts = %d/%d, want 25/1", r.CorrectionsCount, r.PatternsCount)
	}
}

func TestLoopStatsHonorsMinOccurrences(t *testing.T) {
	l := newTestLoop(t, func(c *Config) { c.MinOccurrences = 2 })
	for i := 0; i < 2; i++ {
		_, err := l.Log(context.Background(), LogParams{
			DocumentID:  "inv.pdf",
			FieldPath:   "total_amount",
			Original:    "1,5",
			Corrected:   "1.5",
			Explanation: "Decimal comma",
		})
		if err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PatternsCount != 1 {
		t.Errorf("PatternsCount = %d, want 1 at the configured minimum", stats.PatternsCount)
	}
}

func TestLoopUpdateSkill(t *testing.T) {
	l := newTestLoop(t, func(cfg *Config) {
		cfg.SkillPath = filepath.Join(t.TempDir(), "skill")
		cfg.MinCorrectionsForSkill = 5
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.Log(ctx, LogParams{
			DocumentID:  "inv.pdf",
			FieldPath:   "total_amount",
			Original:    "1,5",
			Corrected:   "1.5",
			Explanation: "Decimal comma",
		}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	// Below threshold without force.
	result, err := l.UpdateSkill(false)
	if err != nil {
		t.Fatalf("UpdateSkill: %v", err)
	}
	if result.Updated {
		t.Error("skill should not update below threshold")
	}
	if result.CorrectionsCount != 3 {
		t.Errorf("CorrectionsCount = %d, want 3", result.CorrectionsCount)
	}

	// Force bypasses the threshold.
	result, err = l.UpdateSkill(true)
	if err != nil {
		t.Fatalf("UpdateSkill(force): %v", err)
	}
	if !result.Updated {
		t.Fatalf("forced update should succeed: %s", result.Reason)
	}
}

func TestLoopUpdateSkillNoPath(t *testing.T) {
	l := newTestLoop(t, nil)

	_, err := l.UpdateSkill(true)
	if !errors.Is(err, ErrNoSkillPath) {
		t.Fatalf("err = %v, want ErrNoSkillPath", err)
	}
}

func TestLoopClose(t *testing.T) {
	l := newTestLoop(t, nil)

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := l.Pending(); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Pending after close = %v, want ErrStoreClosed", err)
	}
	if _, err := l.Log(context.Background(), LogParams{}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Log after close = %v, want ErrStoreClosed", err)
	}
}

func TestTracker(t *testing.T) {
	l := newTestLoop(t, nil)
	tr := NewTracker(l, "extraction_pipeline")

	rec, err := tr.LogCorrection(context.Background(), LogParams{
		DocumentID: "inv.pdf",
		FieldPath:  "amount",
		Original:   "1",
		Corrected:  "2",
	})
	if err != nil {
		t.Fatalf("LogCorrection: %v", err)
	}
	if rec.Correction.CorrectorID != "extraction_pipeline" {
		t.Errorf("CorrectorID = %q, want tracker source", rec.Correction.CorrectorID)
	}

	// An explicit corrector id wins over the source.
	rec, err = tr.LogCorrection(context.Background(), LogParams{
		DocumentID:  "inv.pdf",
		FieldPath:   "amount",
		Original:    "1",
		Corrected:   "2",
		CorrectorID: "alice",
	})
	if err != nil {
		t.Fatalf("LogCorrection: %v", err)
	}
	if rec.Correction.CorrectorID != "alice" {
		t.Errorf("CorrectorID = %q, want alice", rec.Correction.CorrectorID)
	}
}
