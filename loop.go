package iterata

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Loop is the main entry point: it coordinates the record store, the pattern
// detector, the statistics engine, and the optional explainer backend.
//
// Each correction moves through a two-state lifecycle: it is logged as
// pending and becomes explained exactly once. Explained is terminal.
type Loop struct {
	storage   Storage
	analyzer  *Analyzer
	detector  *Detector
	explainer Explainer
	config    Config
	debug     *DebugLogger

	mu     sync.Mutex
	closed bool
}

// LoopOption configures a Loop beyond its Config.
type LoopOption func(*Loop)

// WithExplainer overrides the explainer built from Config.Backend.
func WithExplainer(e Explainer) LoopOption {
	return func(l *Loop) {
		l.explainer = e
	}
}

// WithStorage overrides the storage backend built from Config.Storage.
func WithStorage(s Storage) LoopOption {
	return func(l *Loop) {
		l.storage = s
	}
}

// NewLoop creates a Loop from cfg.
func NewLoop(cfg Config, opts ...LoopOption) (*Loop, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, fmt.Errorf("loop: %w", err)
	}

	l := &Loop{
		config: cfg,
		debug:  debug,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.storage == nil {
		switch cfg.Storage {
		case StorageSQLite:
			l.storage, err = NewSQLiteStore(cfg.BasePath)
		default:
			l.storage, err = NewMarkdownStore(cfg.BasePath, WithDebugLogger(debug))
		}
		if err != nil {
			_ = debug.Close()
			return nil, err
		}
	}

	if l.explainer == nil {
		l.explainer, err = NewExplainer(cfg.Backend)
		if err != nil {
			_ = l.storage.Close()
			_ = debug.Close()
			return nil, err
		}
	}

	l.detector = NewDetector(l.storage)
	l.analyzer = NewAnalyzer(l.storage, WithAnalyzerMinOccurrences(l.config.MinOccurrences))
	return l, nil
}

// Storage exposes the underlying store for direct reads.
func (l *Loop) Storage() Storage { return l.storage }

// Config returns the effective configuration.
func (l *Loop) Config() Config { return l.config }

// Log records a new correction. When params carries a human explanation it
// is attached immediately; otherwise, with auto-explain enabled and an
// explainer configured, the explainer is invoked synchronously. An explainer
// failure leaves the correction pending and surfaces as *ExplanationError.
func (l *Loop) Log(ctx context.Context, params LogParams) (*Record, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	c := &Correction{
		DocumentID:       params.DocumentID,
		FieldPath:        params.FieldPath,
		OriginalValue:    params.Original,
		CorrectedValue:   params.Corrected,
		ConfidenceBefore: params.ConfidenceBefore,
		CorrectorID:      params.CorrectorID,
	}
	id, err := l.storage.SaveCorrection(c)
	if err != nil {
		return nil, err
	}

	if params.Explanation != "" {
		e := &Explanation{
			Text: params.Explanation,
			Type: ExplanationHuman,
		}
		if err := l.storage.SaveExplanation(id, e); err != nil {
			return nil, err
		}
	} else if l.config.AutoExplain && l.explainer != nil {
		if err := l.explainRecord(ctx, id, *c); err != nil {
			return nil, err
		}
	}

	return l.storage.Get(id)
}

// Explain attaches an explanation to a pending correction. A nil explanation
// invokes the configured explainer backend instead.
func (l *Loop) Explain(ctx context.Context, correctionID string, e *Explanation) (*Record, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	if e == nil {
		record, err := l.storage.Get(correctionID)
		if err != nil {
			return nil, err
		}
		if record.Explained() {
			return nil, &AlreadyExplainedError{CorrectionID: correctionID}
		}
		if err := l.explainRecord(ctx, correctionID, record.Correction); err != nil {
			return nil, err
		}
	} else {
		if err := l.storage.SaveExplanation(correctionID, e); err != nil {
			return nil, err
		}
	}
	return l.storage.Get(correctionID)
}

// ExplainPending runs the explainer over every pending correction. It stops
// at the first storage failure but records explainer failures per correction
// and keeps going; the returned map holds the failures by correction id.
func (l *Loop) ExplainPending(ctx context.Context) (explained int, failures map[string]error, err error) {
	if err := l.checkOpen(); err != nil {
		return 0, nil, err
	}
	if l.explainer == nil {
		return 0, nil, ErrNoExplainer
	}

	pending, err := l.storage.ListPending()
	if err != nil {
		return 0, nil, err
	}

	failures = map[string]error{}
	for _, record := range pending {
		if ctx.Err() != nil {
			return explained, failures, ctx.Err()
		}
		if expErr := l.explainRecord(ctx, record.Correction.ID, record.Correction); expErr != nil {
			failures[record.Correction.ID] = expErr
			continue
		}
		explained++
	}
	return explained, failures, nil
}

// explainRecord invokes the explainer and persists the result. Explainer
// failures are wrapped in *ExplanationError and never retried here.
func (l *Loop) explainRecord(ctx context.Context, correctionID string, c Correction) error {
	if l.explainer == nil {
		return ErrNoExplainer
	}
	c.ID = correctionID
	e, err := l.explainer.Explain(ctx, c)
	if err != nil {
		l.debug.LogError("explain "+correctionID, err)
		return &ExplanationError{CorrectionID: correctionID, Err: err}
	}
	l.debug.LogExplainer(correctionID, string(e.CorrectionType))
	return l.storage.SaveExplanation(correctionID, e)
}

// Pending lists corrections that still lack an explanation.
func (l *Loop) Pending() ([]*Record, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.storage.ListPending()
}

// Get returns one record by correction id.
func (l *Loop) Get(correctionID string) (*Record, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.storage.Get(correctionID)
}

// Patterns detects patterns using the configured minimum occurrences.
func (l *Loop) Patterns() ([]Pattern, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.detector.DetectPatterns(l.config.MinOccurrences)
}

// PatternsByField re-groups patterns by field path.
func (l *Loop) PatternsByField() (map[string][]Pattern, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.detector.DetectPatternsByField(l.config.MinOccurrences)
}

// TransformationPatterns groups corrections by value-change shape.
func (l *Loop) TransformationPatterns() ([]TransformationPattern, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.detector.DetectTransformationPatterns(l.config.MinOccurrences)
}

// Stats computes the current statistics.
func (l *Loop) Stats() (*Statistics, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.analyzer.ComputeStats()
}

// Summary renders a human-readable statistics overview.
func (l *Loop) Summary() (string, error) {
	if err := l.checkOpen(); err != nil {
		return "", err
	}
	return l.analyzer.Summary()
}

// Recommendations derives prioritized suggested actions.
func (l *Loop) Recommendations() ([]Recommendation, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.analyzer.Recommendations()
}

// ExportJSON writes the full statistics as JSON.
func (l *Loop) ExportJSON(w io.Writer) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	return l.analyzer.ExportJSON(w)
}

// ExportCSV writes the statistics as flattened key/value CSV.
func (l *Loop) ExportCSV(w io.Writer) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	return l.analyzer.ExportCSV(w)
}

// ExportCorrectionsCSV writes one CSV row per stored correction.
func (l *Loop) ExportCorrectionsCSV(w io.Writer) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	return l.analyzer.ExportCorrectionsCSV(w)
}

// CheckReadiness reports whether enough explained corrections and detected
// patterns exist to generate a skill. Ready requires the explained count to
// reach MinCorrectionsForSkill and at least one detected pattern; the reason
// names the first failing condition.
func (l *Loop) CheckReadiness() (*Readiness, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	explained, err := l.storage.LoadCorrections(FilterExplained)
	if err != nil {
		return nil, err
	}
	patterns, err := l.detector.DetectPatterns(l.config.MinOccurrences)
	if err != nil {
		return nil, err
	}

	r := &Readiness{
		CorrectionsCount: len(explained),
		PatternsCount:    len(patterns),
	}
	switch {
	case len(explained) < l.config.MinCorrectionsForSkill:
		r.Reason = fmt.Sprintf("not enough explained corrections (%d/%d)", len(explained), l.config.MinCorrectionsForSkill)
	case len(patterns) == 0:
		r.Reason = "no patterns detected yet"
	default:
		r.Ready = true
		r.Reason = fmt.Sprintf("ready: %d explained corrections, %d patterns", len(explained), len(patterns))
	}
	return r, nil
}

// UpdateSkill regenerates the skill package when enough explained
// corrections exist. force skips the threshold check.
func (l *Loop) UpdateSkill(force bool) (*SkillResult, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	if l.config.SkillPath == "" {
		return nil, ErrNoSkillPath
	}

	explained, err := l.storage.LoadCorrections(FilterExplained)
	if err != nil {
		return nil, err
	}
	if len(explained) < l.config.MinCorrectionsForSkill && !force {
		return &SkillResult{
			Updated:          false,
			Reason:           fmt.Sprintf("not enough corrections (%d < %d)", len(explained), l.config.MinCorrectionsForSkill),
			CorrectionsCount: len(explained),
		}, nil
	}

	gen := NewSkillGenerator(l.storage)
	result, err := gen.Generate(l.config.SkillPath, DefaultSkillName)
	if err != nil {
		return nil, err
	}
	result.CorrectionsCount = len(explained)
	return result, nil
}

func (l *Loop) checkOpen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close releases the store and the debug log. Safe to call twice.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.storage.Close()
	if dErr := l.debug.Close(); err == nil {
		err = dErr
	}
	return err
}

// now is the single clock used for skill metadata, swap-able in tests.
var now = func() time.Time { return time.Now().UTC() }
