// Package metadata defines the single lookup capability the pipeline's
// "lookup-meta" state calls through (spec.md §1, §4.5 step 4). Metadata
// lookup itself (which external service, which fields) is out of scope.
package metadata

import "context"

// Result is one metadata match.
type Result struct {
	ModID      string
	FileID     string
	Attributes map[string]interface{}
	// SourceURI and Domain describe where the matched file can be
	// downloaded from, used by the dependency resolver's downloadModAsync
	// (spec.md §4.8 step 1) when it has to start a fresh download.
	SourceURI string
	Domain    string
}

// Lookup is the single operation spec.md §1 exposes:
// lookup(filePath, md5, size, gameId) → results.
type Lookup interface {
	Lookup(ctx context.Context, filePath, md5 string, size int64, gameID string) ([]Result, error)
}
