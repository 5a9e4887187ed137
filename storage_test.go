package iterata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *MarkdownStore {
	t.Helper()
	s, err := NewMarkdownStore(filepath.Join(t.TempDir(), "corrections"))
	if err != nil {
		t.Fatalf("NewMarkdownStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveTestCorrection(t *testing.T, s Storage, doc, field, original, corrected string) string {
	t.Helper()
	c := &Correction{
		DocumentID:     doc,
		FieldPath:      field,
		OriginalValue:  original,
		CorrectedValue: corrected,
	}
	if _, err := s.SaveCorrection(c); err != nil {
		t.Fatalf("SaveCorrection: %v", err)
	}
	return c.ID
}

func TestMarkdownStoreSaveAndGet(t *testing.T) {
	s := newTestStore(t)

	id := saveTestCorrection(t, s, "invoice_001.pdf", "total_amount", "1.234,56", "1234.56")
	if id == "" {
		t.Fatal("expected generated correction ID")
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("Status = %q, want pending", rec.Status)
	}
	if rec.Correction.OriginalValue != "1.234,56" {
		t.Errorf("OriginalValue = %q", rec.Correction.OriginalValue)
	}
	if rec.Correction.Timestamp.IsZero() {
		t.Error("timestamp should be set on save")
	}

	// Record file lands in the inbox.
	if !strings.Contains(rec.Path, "inbox") {
		t.Errorf("record path = %q, want under inbox/", rec.Path)
	}
}

func TestMarkdownStoreGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if notFound.CorrectionID != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Errorf("CorrectionID = %q", notFound.CorrectionID)
	}
}

func TestMarkdownStoreSaveExplanation(t *testing.T) {
	s := newTestStore(t)
	id := saveTestCorrection(t, s, "doc.pdf", "amount", "1,5", "1.5")

	err := s.SaveExplanation(id, &Explanation{
		Text:           "Decimal separator fixed",
		CorrectionType: TypeFormatError,
	})
	if err != nil {
		t.Fatalf("SaveExplanation: %v", err)
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Explained() {
		t.Fatal("record should be explained")
	}
	if rec.Explanation.Category != CategoryFormatting {
		t.Errorf("Category = %q, want formatting (derived from correction type)", rec.Explanation.Category)
	}
	if rec.Explanation.Type != ExplanationHuman {
		t.Errorf("Type = %q, want human_provided", rec.Explanation.Type)
	}
	if !strings.Contains(rec.Path, filepath.Join("explained", "formatting")) {
		t.Errorf("record path = %q, want under explained/formatting/", rec.Path)
	}

	// Inbox copy is gone.
	pending, err := s.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestMarkdownStoreDoubleExplain(t *testing.T) {
	s := newTestStore(t)
	id := saveTestCorrection(t, s, "doc.pdf", "amount", "1,5", "1.5")

	if err := s.SaveExplanation(id, &Explanation{Text: "first"}); err != nil {
		t.Fatalf("first SaveExplanation: %v", err)
	}

	err := s.SaveExplanation(id, &Explanation{Text: "second"})
	var already *AlreadyExplainedError
	if !errors.As(err, &already) {
		t.Fatalf("err = %v, want *AlreadyExplainedError", err)
	}
	if already.CorrectionID != id {
		t.Errorf("CorrectionID = %q, want %q", already.CorrectionID, id)
	}
}

func TestMarkdownStoreExplainMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveExplanation("missing-id", &Explanation{Text: "x"})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
}

func TestMarkdownStoreLoadCorrectionsFilters(t *testing.T) {
	s := newTestStore(t)

	id1 := saveTestCorrection(t, s, "a.pdf", "amount", "1,5", "1.5")
	id2 := saveTestCorrection(t, s, "b.pdf", "date", "01/15/2024", "2024-01-15")
	saveTestCorrection(t, s, "c.pdf", "name", "ACME", "Acme Corp")

	if err := s.SaveExplanation(id1, &Explanation{Text: "sep", CorrectionType: TypeFormatError}); err != nil {
		t.Fatalf("SaveExplanation: %v", err)
	}
	if err := s.SaveExplanation(id2, &Explanation{Text: "date", CorrectionType: TypeFormatError}); err != nil {
		t.Fatalf("SaveExplanation: %v", err)
	}

	all, err := s.LoadCorrections(FilterAll)
	if err != nil {
		t.Fatalf("LoadCorrections(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}

	explained, err := s.LoadCorrections(FilterExplained)
	if err != nil {
		t.Fatalf("LoadCorrections(explained): %v", err)
	}
	if len(explained) != 2 {
		t.Errorf("explained = %d, want 2", len(explained))
	}

	pending, err := s.LoadCorrections(FilterPending)
	if err != nil {
		t.Fatalf("LoadCorrections(pending): %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestMarkdownStoreInsertionOrder(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, saveTestCorrection(t, s, "doc.pdf", "amount", "a", "b"))
	}

	records, err := s.LoadCorrections(FilterAll)
	if err != nil {
		t.Fatalf("LoadCorrections: %v", err)
	}
	if len(records) != len(ids) {
		t.Fatalf("got %d records, want %d", len(records), len(ids))
	}
	for i, rec := range records {
		if rec.Correction.ID != ids[i] {
			t.Errorf("records[%d] = %s, want %s", i, rec.Correction.ID, ids[i])
		}
	}
}

func TestMarkdownStoreSkipsMalformed(t *testing.T) {
	s := newTestStore(t)
	saveTestCorrection(t, s, "good.pdf", "amount", "1", "2")

	// Drop a corrupt file into the inbox by hand.
	bad := filepath.Join(s.BasePath(), "inbox", "00000000000000000000000000.md")
	if err := os.WriteFile(bad, []byte("not a record"), 0o644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	records, err := s.LoadCorrections(FilterAll)
	if err != nil {
		t.Fatalf("LoadCorrections: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1 (malformed skipped)", len(records))
	}

	// The lazy sequence surfaces the malformed record as an error.
	var sawMalformed bool
	for _, err := range s.Records(FilterAll) {
		var malformed *MalformedRecordError
		if errors.As(err, &malformed) {
			sawMalformed = true
			if malformed.Path != bad {
				t.Errorf("malformed path = %q, want %q", malformed.Path, bad)
			}
		}
	}
	if !sawMalformed {
		t.Error("Records should yield the malformed record error")
	}
}

func TestMarkdownStoreRejectsConflictingDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewMarkdownStore(dir)
	if err == nil {
		t.Fatal("expected init error for non-empty unrelated directory")
	}
	if !errors.Is(err, ErrStorageInit) {
		t.Errorf("err = %v, want ErrStorageInit", err)
	}
}

func TestMarkdownStoreClosed(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := s.SaveCorrection(&Correction{DocumentID: "d", FieldPath: "f"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("SaveCorrection after close = %v, want ErrStoreClosed", err)
	}
	if _, err := s.Get("x"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after close = %v, want ErrStoreClosed", err)
	}
}

func TestMarkdownStoreConfidenceValidation(t *testing.T) {
	s := newTestStore(t)

	bad := 1.5
	_, err := s.SaveCorrection(&Correction{
		DocumentID:       "d",
		FieldPath:        "f",
		ConfidenceBefore: &bad,
	})
	if err == nil {
		t.Fatal("expected error for out-of-range confidence")
	}
}
