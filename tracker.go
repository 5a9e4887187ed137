package iterata

import "context"

// Tracker binds a Loop to one named extraction source, stamping every logged
// correction with that source so downstream statistics can attribute them.
// It is the explicit replacement for wrapping an extraction function: hold a
// Tracker next to the extractor and call LogCorrection as fixes come in.
type Tracker struct {
	loop   *Loop
	source string
}

// NewTracker creates a Tracker for the named extraction source.
func NewTracker(loop *Loop, source string) *Tracker {
	return &Tracker{loop: loop, source: source}
}

// Source returns the extraction source this tracker is bound to.
func (t *Tracker) Source() string { return t.source }

// LogCorrection records a correction attributed to this tracker's source.
// An empty CorrectorID in params is filled with the source name.
func (t *Tracker) LogCorrection(ctx context.Context, params LogParams) (*Record, error) {
	if params.CorrectorID == "" {
		params.CorrectorID = t.source
	}
	return t.loop.Log(ctx, params)
}

// Stats returns current statistics from the underlying loop.
func (t *Tracker) Stats() (*Statistics, error) {
	return t.loop.Stats()
}

// Summary returns the human-readable statistics overview.
func (t *Tracker) Summary() (string, error) {
	return t.loop.Summary()
}

// CheckReadiness reports skill readiness from the underlying loop.
func (t *Tracker) CheckReadiness() (*Readiness, error) {
	return t.loop.CheckReadiness()
}
