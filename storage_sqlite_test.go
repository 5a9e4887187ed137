package iterata

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "corrections.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreSaveAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)

	conf := 0.4
	c := &Correction{
		DocumentID:       "invoice_001.pdf",
		FieldPath:        "total_amount",
		OriginalValue:    "1.234,56",
		CorrectedValue:   "1234.56",
		ConfidenceBefore: &conf,
		CorrectorID:      "alice",
	}
	id, err := s.SaveCorrection(c)
	if err != nil {
		t.Fatalf("SaveCorrection: %v", err)
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("Status = %q, want pending", rec.Status)
	}
	if rec.Correction.OriginalValue != "1.234,56" || rec.Correction.CorrectedValue != "1234.56" {
		t.Errorf("values = %q -> %q", rec.Correction.OriginalValue, rec.Correction.CorrectedValue)
	}
	if rec.Correction.ConfidenceBefore == nil || *rec.Correction.ConfidenceBefore != 0.4 {
		t.Errorf("ConfidenceBefore = %v", rec.Correction.ConfidenceBefore)
	}
	if rec.Correction.CorrectorID != "alice" {
		t.Errorf("CorrectorID = %q", rec.Correction.CorrectorID)
	}
	if rec.Correction.Timestamp.IsZero() {
		t.Error("timestamp should be set on save")
	}
}

func TestSQLiteStoreGetNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.Get("01BOGUS")
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("Get error = %v, want *NotFoundError", err)
	}
}

func TestSQLiteStoreExplainLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	id := saveTestCorrection(t, s, "inv.pdf", "amount", "1,5", "1.5")

	err := s.SaveExplanation(id, &Explanation{
		Text:                "Decimal comma",
		CorrectionType:      TypeFormatError,
		AutomationPotential: 0.9,
		Tags:                []string{"locale", "numbers"},
	})
	if err != nil {
		t.Fatalf("SaveExplanation: %v", err)
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusExplained {
		t.Fatalf("Status = %q, want explained", rec.Status)
	}
	if rec.Explanation.Category != CategoryFormatting {
		t.Errorf("Category = %q, want formatting", rec.Explanation.Category)
	}
	if rec.Explanation.AutomationPotential != 0.9 {
		t.Errorf("AutomationPotential = %v", rec.Explanation.AutomationPotential)
	}
	if len(rec.Explanation.Tags) != 2 || rec.Explanation.Tags[0] != "locale" {
		t.Errorf("Tags = %v", rec.Explanation.Tags)
	}

	// Explained is terminal.
	err = s.SaveExplanation(id, &Explanation{Text: "again"})
	var aeErr *AlreadyExplainedError
	if !errors.As(err, &aeErr) {
		t.Fatalf("second SaveExplanation = %v, want *AlreadyExplainedError", err)
	}
}

func TestSQLiteStoreExplainMissing(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.SaveExplanation("01BOGUS", &Explanation{Text: "x"})
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("SaveExplanation = %v, want *NotFoundError", err)
	}
}

func TestSQLiteStoreFilters(t *testing.T) {
	s := newTestSQLiteStore(t)

	id1 := saveTestCorrection(t, s, "a.pdf", "amount", "1", "2")
	saveTestCorrection(t, s, "b.pdf", "amount", "3", "4")
	if err := s.SaveExplanation(id1, &Explanation{Text: "x"}); err != nil {
		t.Fatalf("SaveExplanation: %v", err)
	}

	all, err := s.LoadCorrections(FilterAll)
	if err != nil {
		t.Fatalf("LoadCorrections(all): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	explained, err := s.LoadCorrections(FilterExplained)
	if err != nil {
		t.Fatalf("LoadCorrections(explained): %v", err)
	}
	if len(explained) != 1 || explained[0].Correction.ID != id1 {
		t.Errorf("explained = %d records", len(explained))
	}

	pending, err := s.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].Correction.DocumentID != "b.pdf" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestSQLiteStoreInsertionOrder(t *testing.T) {
	s := newTestSQLiteStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, saveTestCorrection(t, s, "inv.pdf", "amount", "1", "2"))
	}

	records, err := s.LoadCorrections(FilterAll)
	if err != nil {
		t.Fatalf("LoadCorrections: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}
	for i, rec := range records {
		if rec.Correction.ID != ids[i] {
			t.Errorf("records[%d].ID = %s, want %s", i, rec.Correction.ID, ids[i])
		}
	}
}

func TestSQLiteStoreConfidenceValidation(t *testing.T) {
	s := newTestSQLiteStore(t)

	bad := 1.5
	_, err := s.SaveCorrection(&Correction{
		DocumentID:       "inv.pdf",
		FieldPath:        "amount",
		OriginalValue:    "1",
		CorrectedValue:   "2",
		ConfidenceBefore: &bad,
	})
	if err == nil {
		t.Fatal("confidence above 1 should be rejected")
	}
}

func TestSQLiteStoreClosed(t *testing.T) {
	s := newTestSQLiteStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := s.SaveCorrection(&Correction{DocumentID: "a", FieldPath: "b", OriginalValue: "1", CorrectedValue: "2"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("SaveCorrection = %v, want ErrStoreClosed", err)
	}
	if _, err := s.Get("x"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get = %v, want ErrStoreClosed", err)
	}
	if _, err := s.LoadCorrections(FilterAll); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("LoadCorrections = %v, want ErrStoreClosed", err)
	}
}

func TestSQLiteStoreReusable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrections.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	id := saveTestCorrection(t, s, "inv.pdf", "amount", "1", "2")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening sees prior state; migrations are idempotent.
	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	rec, err := s2.Get(id)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if rec.Correction.DocumentID != "inv.pdf" {
		t.Errorf("DocumentID = %q", rec.Correction.DocumentID)
	}
}
