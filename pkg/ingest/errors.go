package ingest

import (
	"fmt"
	"strings"
)

// ArtifactFailure records one artifact that could not be applied.
type ArtifactFailure struct {
	// Path is the artifact the failure belongs to.
	Path string `json:"path"`

	// Err is the underlying cause, preserved for errors.Is matching.
	Err error `json:"-"`

	// Message mirrors Err for serialized reports.
	Message string `json:"message"`

	// Recoverable marks payload-level failures: the artifact was skipped and
	// the rest of the batch proceeded. Structural failures are never
	// recoverable and roll the whole batch back.
	Recoverable bool `json:"recoverable"`
}

// AnalysisError reports a batch that was rolled back. It carries every
// per-artifact failure so the caller can display them without re-deriving
// anything. Recoverable skips that happened before the rollback are included
// for completeness.
type AnalysisError struct {
	BatchID  string            `json:"batchId"`
	Failures []ArtifactFailure `json:"failures"`
}

func (e *AnalysisError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %s rolled back: %d failure(s)", e.BatchID, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Path, f.Err)
	}
	return b.String()
}

// Unwrap exposes the first non-recoverable cause, which is the failure that
// triggered the rollback.
func (e *AnalysisError) Unwrap() error {
	for _, f := range e.Failures {
		if !f.Recoverable {
			return f.Err
		}
	}
	return nil
}
