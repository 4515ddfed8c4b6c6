package install

import (
	"context"

	"github.com/itchio/wharf/state"
)

// ExtractResult is what an Extractor reports about one extraction run
// (spec.md §4.3).
type ExtractResult struct {
	Code   int
	Errors []string
}

// PasswordPrompt asks the user for a password, or fails with a
// KindUserCanceled *Error if they decline (spec.md §4.3).
type PasswordPrompt func(ctx context.Context) (string, error)

// Extractor is the opaque archive codec this module consumes but never
// implements (spec.md §1 "Out of scope: the archive codec"). A concrete
// implementation wraps whatever decompression engine the host uses
// (7-zip, go native zip/tar, etc.) — the teacher's equivalent lives in
// installer/archive and wraps savior.Extractor.
type Extractor interface {
	ExtractFull(ctx context.Context, archivePath, destDir string, consumer *state.Consumer, prompt PasswordPrompt) (ExtractResult, error)
}

// ExtractOutcome is how the pipeline's extract state classifies one
// ExtractFull call, folding in the critical-error classification of
// spec.md §4.3.
type ExtractOutcome int

const (
	ExtractOutcomeSuccess ExtractOutcome = iota
	ExtractOutcomeBroken
	ExtractOutcomeSoftError
)

// ClassifyExtractResult implements spec.md §4.3's decision table: a
// critical message always wins (ExtractOutcomeBroken); otherwise a
// non-zero code without a critical message is a soft error the pipeline
// should ask the user about, withholding "continue" if any error string
// is present at all only when it was actually critical (soft errors
// still offer continue).
func ClassifyExtractResult(res ExtractResult) (ExtractOutcome, *Error) {
	if ierr, ok := ClassifyExtractionError(res.Errors); ok {
		return ExtractOutcomeBroken, ierr
	}
	if res.Code != 0 {
		return ExtractOutcomeSoftError, nil
	}
	return ExtractOutcomeSuccess, nil
}
