package install

import (
	"context"

	"github.com/peterkwkwan/modinstall/install/metadata"
)

// Dependency is the resolver's working record for one rule it's trying
// to satisfy (spec.md §3).
type Dependency struct {
	Reference        Reference
	LookupResults    []metadata.Result
	Download         *DownloadRef
	Mod              *Mod
	InstallerChoices map[string]interface{}
	FileList         []FileEntry
	ExtraType        string
	ExtraName        string
}

// DownloadRef is the subset of downloadmgr.FileState a Gatherer already
// knows about a dependency's download before the resolver has a concrete
// manager handle to re-query (spec.md §4.8 step 1).
type DownloadRef struct {
	ID     string
	Paused bool
}

// DependencyError is one rule the gather phase could not resolve at all.
type DependencyError struct {
	Reference Reference
	Message   string
}

// GatherOutcome is one element of the gather phase's mixed result list
// (spec.md §4.8 "producing a mixed list of Dependency and
// DependencyError").
type GatherOutcome struct {
	Dependency *Dependency
	Error      *DependencyError
}

// Gatherer is the external collaborator spec.md §4.8 calls "an external
// gather(rules, api, recommended)": it turns mod rules into candidate
// dependencies, consulting metadata lookup and whatever catalog backs
// it. Out of scope for this module beyond the interface itself.
type Gatherer interface {
	Gather(ctx context.Context, rules []ModRule, recommended bool) ([]GatherOutcome, error)
}
