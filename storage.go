package iterata

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/iterata/internal/store"
	"github.com/oklog/ulid/v2"
)

// Storage is the persistence contract for corrections and explanations.
// Implementations must be safe for a single writer with concurrent readers;
// concurrent writers to the same store are out of contract.
type Storage interface {
	// SaveCorrection persists a new pending correction and returns its ID,
	// generating one if the correction carries none.
	SaveCorrection(c *Correction) (string, error)

	// SaveExplanation attaches an explanation to a pending correction and
	// transitions it to the explained state. Returns *NotFoundError if no
	// pending correction matches, *AlreadyExplainedError if the correction
	// already carries an explanation.
	SaveExplanation(correctionID string, e *Explanation) error

	// Get returns the record for a correction ID regardless of state.
	Get(correctionID string) (*Record, error)

	// Records returns a lazy, restartable sequence of records matching the
	// filter, in insertion order. Malformed records are yielded as errors
	// and skipped; they never abort the sequence.
	Records(filter StatusFilter) iter.Seq2[*Record, error]

	// LoadCorrections collects records matching the filter, skipping
	// malformed ones.
	LoadCorrections(filter StatusFilter) ([]*Record, error)

	// ListPending returns all unexplained corrections.
	ListPending() ([]*Record, error)

	Close() error
}

// categoryDirs returns the explained subdirectory names, one per category.
func categoryDirs() []string {
	cats := ValidCategories()
	dirs := make([]string, len(cats))
	for i, c := range cats {
		dirs[i] = string(c)
	}
	return dirs
}

// MarkdownStore persists each record as a single human-editable markdown file
// with a YAML frontmatter header. Pending records live under inbox/, explained
// records under explained/<category>/.
type MarkdownStore struct {
	base  string
	debug *DebugLogger

	mu     sync.RWMutex
	closed bool
}

// MarkdownOption configures a MarkdownStore.
type MarkdownOption func(*MarkdownStore)

// WithDebugLogger attaches a debug logger to the store. Skipped malformed
// records are reported through it during bulk loads.
func WithDebugLogger(logger *DebugLogger) MarkdownOption {
	return func(s *MarkdownStore) { s.debug = logger }
}

// NewMarkdownStore opens or creates a markdown store at basePath, creating
// the directory layout if absent.
func NewMarkdownStore(basePath string, opts ...MarkdownOption) (*MarkdownStore, error) {
	if basePath == "" {
		basePath = store.DefaultBasePath()
	}
	if err := store.EnsureLayout(basePath, categoryDirs()); err != nil {
		return nil, &StorageError{Op: "init", Path: basePath, Err: fmt.Errorf("%w: %v", ErrStorageInit, err)}
	}

	s := &MarkdownStore{base: basePath}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BasePath returns the store's base directory.
func (s *MarkdownStore) BasePath() string { return s.base }

// SaveCorrection implements Storage. A missing ID is generated (ULIDs sort by
// creation time, which keeps directory listings in insertion order); a zero
// timestamp is set to now. The write is atomic: temp file then rename.
func (s *MarkdownStore) SaveCorrection(c *Correction) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	if c.ConfidenceBefore != nil && (*c.ConfidenceBefore < 0 || *c.ConfidenceBefore > 1) {
		return "", fmt.Errorf("confidence_before must be between 0 and 1, got %v", *c.ConfidenceBefore)
	}

	rec := &Record{
		Correction: *c,
		Status:     StatusPending,
		Body:       correctionBody(c),
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return "", err
	}

	path := store.RecordFile(store.InboxDir(s.base), c.ID)
	if err := store.WriteAtomic(path, data); err != nil {
		return "", &StorageError{Op: "save correction", Path: path, Err: err}
	}
	return c.ID, nil
}

// SaveExplanation implements Storage. The record file is rewritten with the
// merged header under explained/<category>/ and removed from the inbox.
func (s *MarkdownStore) SaveExplanation(correctionID string, e *Explanation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	inboxPath := store.RecordFile(store.InboxDir(s.base), correctionID)
	data, err := os.ReadFile(inboxPath)
	if err != nil {
		if os.IsNotExist(err) {
			if s.findExplained(correctionID) != "" {
				return &AlreadyExplainedError{CorrectionID: correctionID}
			}
			return &NotFoundError{CorrectionID: correctionID}
		}
		return &StorageError{Op: "read correction", Path: inboxPath, Err: err}
	}

	rec, err := ParseRecord(inboxPath, data)
	if err != nil {
		return err
	}
	if rec.Explained() || rec.Status == StatusExplained {
		return &AlreadyExplainedError{CorrectionID: correctionID}
	}

	if err := normalizeExplanation(correctionID, e); err != nil {
		return err
	}

	rec.Explanation = e
	rec.Status = StatusExplained
	rec.Body = attachExplanationBody(rec.Body, e)

	out, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	destPath := store.RecordFile(store.CategoryDir(s.base, string(e.Category)), correctionID)
	if err := store.WriteAtomic(destPath, out); err != nil {
		return &StorageError{Op: "save explanation", Path: destPath, Err: err}
	}
	if err := os.Remove(inboxPath); err != nil {
		return &StorageError{Op: "remove inbox record", Path: inboxPath, Err: err}
	}
	return nil
}

// normalizeExplanation fills derivable fields and validates ranges.
func normalizeExplanation(correctionID string, e *Explanation) error {
	e.CorrectionID = correctionID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	if e.CorrectionType == "" {
		e.CorrectionType = TypeOther
	}
	if !e.CorrectionType.IsValid() {
		e.CorrectionType = TypeOther
	}
	if e.Category == "" {
		e.Category = CategoryFor(e.CorrectionType)
	}
	if !e.Category.IsValid() {
		e.Category = CategoryOther
	}
	if e.AutomationPotential < 0 || e.AutomationPotential > 1 {
		return fmt.Errorf("automation_potential must be between 0 and 1, got %v", e.AutomationPotential)
	}
	if e.Type == "" {
		e.Type = ExplanationHuman
	}
	return nil
}

// Get implements Storage.
func (s *MarkdownStore) Get(correctionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	path := store.RecordFile(store.InboxDir(s.base), correctionID)
	if _, err := os.Stat(path); err != nil {
		path = s.findExplained(correctionID)
		if path == "" {
			return nil, &NotFoundError{CorrectionID: correctionID}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Op: "read record", Path: path, Err: err}
	}
	return ParseRecord(path, data)
}

// findExplained returns the path of an explained record, or "" if absent.
func (s *MarkdownStore) findExplained(correctionID string) string {
	for _, cat := range categoryDirs() {
		path := store.RecordFile(store.CategoryDir(s.base, cat), correctionID)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Records implements Storage. Each range over the sequence re-reads the
// directory, so iteration is restartable and always reflects current state.
func (s *MarkdownStore) Records(filter StatusFilter) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			yield(nil, ErrStoreClosed)
			return
		}

		paths, err := s.recordPaths(filter)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					// Moved by an explanation between listing and read.
					continue
				}
				yield(nil, &StorageError{Op: "read record", Path: path, Err: err})
				return
			}
			rec, err := ParseRecord(path, data)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// recordPaths lists matching record files sorted by correction ID, which is
// insertion order for generated ULIDs.
func (s *MarkdownStore) recordPaths(filter StatusFilter) ([]string, error) {
	var paths []string

	if filter == FilterAll || filter == FilterPending {
		inbox, err := listRecordFiles(store.InboxDir(s.base))
		if err != nil {
			return nil, err
		}
		paths = append(paths, inbox...)
	}
	if filter == FilterAll || filter == FilterExplained {
		for _, cat := range categoryDirs() {
			files, err := listRecordFiles(store.CategoryDir(s.base, cat))
			if err != nil {
				return nil, err
			}
			paths = append(paths, files...)
		}
	}

	sort.Slice(paths, func(i, j int) bool {
		return filepath.Base(paths[i]) < filepath.Base(paths[j])
	})
	return paths, nil
}

func listRecordFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list records", Path: dir, Err: err}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), store.RecordExt) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// LoadCorrections implements Storage. Malformed records are skipped and
// reported through the debug logger; I/O failures abort the load.
func (s *MarkdownStore) LoadCorrections(filter StatusFilter) ([]*Record, error) {
	var records []*Record
	for rec, err := range s.Records(filter) {
		if err != nil {
			var malformed *MalformedRecordError
			if errors.As(err, &malformed) {
				s.debug.Log("skipping malformed record: %v", malformed)
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListPending implements Storage.
func (s *MarkdownStore) ListPending() ([]*Record, error) {
	return s.LoadCorrections(FilterPending)
}

// Close implements Storage.
func (s *MarkdownStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
