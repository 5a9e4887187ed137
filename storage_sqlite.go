package iterata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/iterata/internal/store/migrations"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = "1"

// SQLiteStore is the alternative storage backend for high-volume stores.
// It keeps the same lifecycle contract as MarkdownStore but trades
// human-editable files for indexed queries.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
	debug  *DebugLogger
}

// NewSQLiteStore opens or creates a SQLite-backed correction store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "init", Path: path, Err: fmt.Errorf("%w: %v", ErrStorageInit, err)}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "init", Path: path, Err: fmt.Errorf("%w: %v", ErrStorageInit, err)}
	}

	// WAL keeps concurrent readers from blocking the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &StorageError{Op: "init", Path: path, Err: err}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "migrate", Path: path, Err: err}
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, sqliteSchemaVersion)
	return err
}

// SaveCorrection implements Storage.
func (s *SQLiteStore) SaveCorrection(c *Correction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	_, err := s.db.Exec(`
		INSERT INTO corrections (id, document_id, field_path, original_value, corrected_value, confidence_before, corrector_id, created_at, status, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.DocumentID,
		c.FieldPath,
		c.OriginalValue,
		c.CorrectedValue,
		c.ConfidenceBefore,
		nullString(c.CorrectorID),
		c.Timestamp.UTC().Format(time.RFC3339),
		string(StatusPending),
		correctionBody(c),
	)
	if err != nil {
		return "", &StorageError{Op: "save correction", Path: s.path, Err: err}
	}
	return c.ID, nil
}

// SaveExplanation implements Storage. The status check and explanation insert
// run in one transaction so the pending -> explained transition is atomic.
func (s *SQLiteStore) SaveExplanation(correctionID string, e *Explanation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := normalizeExplanation(correctionID, e); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Op: "save explanation", Path: s.path, Err: err}
	}
	defer tx.Rollback() // no-op if committed

	var status string
	err = tx.QueryRow(`SELECT status FROM corrections WHERE id = ?`, correctionID).Scan(&status)
	if err == sql.ErrNoRows {
		return &NotFoundError{CorrectionID: correctionID}
	}
	if err != nil {
		return &StorageError{Op: "save explanation", Path: s.path, Err: err}
	}
	if Status(status) == StatusExplained {
		return &AlreadyExplainedError{CorrectionID: correctionID}
	}

	var tagsStr *string
	if len(e.Tags) > 0 {
		joined := strings.Join(e.Tags, ",")
		tagsStr = &joined
	}

	_, err = tx.Exec(`
		INSERT INTO explanations (correction_id, explained_at, explanation_type, correction_type, category, subcategory, explanation_text, automation_potential, tags, explainer_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		correctionID,
		e.Timestamp.UTC().Format(time.RFC3339),
		string(e.Type),
		string(e.CorrectionType),
		string(e.Category),
		nullString(e.Subcategory),
		e.Text,
		e.AutomationPotential,
		tagsStr,
		nullString(e.ExplainerID),
	)
	if err != nil {
		return &StorageError{Op: "save explanation", Path: s.path, Err: err}
	}

	_, err = tx.Exec(`UPDATE corrections SET status = ? WHERE id = ?`, string(StatusExplained), correctionID)
	if err != nil {
		return &StorageError{Op: "save explanation", Path: s.path, Err: err}
	}

	return tx.Commit()
}

// Get implements Storage.
func (s *SQLiteStore) Get(correctionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow(recordSelect+` WHERE c.id = ?`, correctionID)
	rec, err := s.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{CorrectionID: correctionID}
	}
	return rec, err
}

// Records implements Storage. Each range over the sequence issues a fresh
// query, so iteration is restartable and always reflects current state.
func (s *SQLiteStore) Records(filter StatusFilter) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			yield(nil, ErrStoreClosed)
			return
		}

		query := recordSelect
		var args []any
		switch filter {
		case FilterPending:
			query += ` WHERE c.status = ?`
			args = append(args, string(StatusPending))
		case FilterExplained:
			query += ` WHERE c.status = ?`
			args = append(args, string(StatusExplained))
		}
		query += ` ORDER BY c.created_at, c.id`

		rows, err := s.db.Query(query, args...)
		if err != nil {
			yield(nil, &StorageError{Op: "list records", Path: s.path, Err: err})
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := s.scanRecord(rows)
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
		if err := rows.Err(); err != nil {
			yield(nil, &StorageError{Op: "list records", Path: s.path, Err: err})
		}
	}
}

// LoadCorrections implements Storage.
func (s *SQLiteStore) LoadCorrections(filter StatusFilter) ([]*Record, error) {
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
func (s *SQLiteStore) ListPending() ([]*Record, error) {
	return s.LoadCorrections(FilterPending)
}

// Close implements Storage.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

const recordSelect = `
	SELECT c.id, c.document_id, c.field_path, c.original_value, c.corrected_value,
	       c.confidence_before, c.corrector_id, c.created_at, c.status, c.body, c.extra,
	       e.explained_at, e.explanation_type, e.correction_type, e.category,
	       e.subcategory, e.explanation_text, e.automation_potential, e.tags, e.explainer_id
	FROM corrections c
	LEFT JOIN explanations e ON e.correction_id = c.id`

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRecord(sc scanner) (*Record, error) {
	var (
		rec              Record
		confidenceBefore sql.NullFloat64
		correctorID      sql.NullString
		createdAt        string
		status           string
		extra            sql.NullString

		explainedAt     sql.NullString
		explanationType sql.NullString
		correctionType  sql.NullString
		category        sql.NullString
		subcategory     sql.NullString
		explanationText sql.NullString
		automation      sql.NullFloat64
		tags            sql.NullString
		explainerID     sql.NullString
	)

	err := sc.Scan(
		&rec.Correction.ID,
		&rec.Correction.DocumentID,
		&rec.Correction.FieldPath,
		&rec.Correction.OriginalValue,
		&rec.Correction.CorrectedValue,
		&confidenceBefore,
		&correctorID,
		&createdAt,
		&status,
		&rec.Body,
		&extra,
		&explainedAt,
		&explanationType,
		&correctionType,
		&category,
		&subcategory,
		&explanationText,
		&automation,
		&tags,
		&explainerID,
	)
	if err != nil {
		return nil, err
	}

	if confidenceBefore.Valid {
		v := confidenceBefore.Float64
		rec.Correction.ConfidenceBefore = &v
	}
	if correctorID.Valid {
		rec.Correction.CorrectorID = correctorID.String
	}
	rec.Correction.Timestamp, _ = time.Parse(time.RFC3339, createdAt)
	rec.Status = Status(status)
	rec.Path = s.path
	if extra.Valid && extra.String != "" {
		_ = json.Unmarshal([]byte(extra.String), &rec.Extra)
	}

	if rec.Status == StatusExplained && category.Valid {
		e := &Explanation{
			CorrectionID:        rec.Correction.ID,
			Type:                ExplanationType(explanationType.String),
			CorrectionType:      CorrectionType(correctionType.String),
			Category:            Category(category.String),
			Subcategory:         subcategory.String,
			Text:                explanationText.String,
			AutomationPotential: automation.Float64,
			ExplainerID:         explainerID.String,
		}
		if explainedAt.Valid {
			e.Timestamp, _ = time.Parse(time.RFC3339, explainedAt.String)
		}
		if tags.Valid && tags.String != "" {
			e.Tags = strings.Split(tags.String, ",")
		}
		rec.Explanation = e
	}

	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
