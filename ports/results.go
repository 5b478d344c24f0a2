package ports

import (
	"context"

	"biastest/domain/toys"
)

// ResultSink persists the accumulated run record. Each call replaces the
// previous checkpoint wholesale.
type ResultSink interface {
	Checkpoint(ctx context.Context, rec *toys.RunRecord) error
}

// LoadWarning describes an artifact that was skipped while loading.
type LoadWarning struct {
	Path string
	Err  error
}

// ResultSource loads finalized run records for reporting.
type ResultSource interface {
	// LoadRecords returns every readable record. Unreadable inputs are
	// returned as warnings, not errors.
	LoadRecords(ctx context.Context) ([]*toys.RunRecord, []LoadWarning, error)
}
