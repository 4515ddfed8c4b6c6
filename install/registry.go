package install

import (
	"sort"

	"github.com/itchio/wharf/state"
)

// FileEntry is one file or directory produced by the extractor, used by
// Installer.TestSupported / Install. Directories carry a trailing
// separator in Path, per spec.md §4.5 step 9 ("needed by some installers'
// stop-folder heuristics").
type FileEntry struct {
	Path  string
	IsDir bool
}

// TestSupportedResult is what an installer returns when asked whether it
// can handle a file list (spec.md §4.2).
type TestSupportedResult struct {
	Supported     bool
	RequiredFiles []string
}

// ProgressFunc reports installer-internal progress in [0, 100].
type ProgressFunc func(percent float64)

// Installer is a pluggable install strategy (spec.md §3, §4.2). It is a
// behavioural capability, not a class hierarchy, per spec.md §9.
type Installer interface {
	Name() string
	TestSupported(files []FileEntry, gameID string) (TestSupportedResult, error)
	Install(
		files []FileEntry,
		tempDir string,
		gameID string,
		progress ProgressFunc,
		choices map[string]interface{},
		unattended bool,
	) ([]Instruction, error)
}

type registryEntry struct {
	priority int
	seq      int
	installer Installer
}

// Registry is the priority-ordered list of installer strategies
// (spec.md §4.2). It holds no other mutable state and is read-only once
// installs are running, the way the teacher's installer.managers map is
// only ever written at startup (installer/registry.go).
type Registry struct {
	consumer *state.Consumer
	entries  []registryEntry
	nextSeq  int
}

// NewRegistry creates an empty registry.
func NewRegistry(consumer *state.Consumer) *Registry {
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	return &Registry{consumer: consumer}
}

// Register inserts an installer, keeping the list sorted ascending by
// priority (lower runs earlier); ties resolve by registration order
// (spec.md §3 invariant "Installer order is total").
func (r *Registry) Register(priority int, installer Installer) {
	r.entries = append(r.entries, registryEntry{priority: priority, seq: r.nextSeq, installer: installer})
	r.nextSeq++
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].priority != r.entries[j].priority {
			return r.entries[i].priority < r.entries[j].priority
		}
		return r.entries[i].seq < r.entries[j].seq
	})
}

// Find scans the registry in priority order and returns the first
// installer whose TestSupported reports supported=true (spec.md §4.2).
// A nil result with a nil error means no installer matched; the caller
// (pipeline step select-installer) turns that into a fatal SetupError.
func (r *Registry) Find(files []FileEntry, gameID string) (Installer, error) {
	for _, e := range r.entries {
		res, err := e.installer.TestSupported(files, gameID)
		if err != nil {
			r.consumer.Warnf("installer %s: TestSupported failed: %s", e.installer.Name(), err.Error())
			continue
		}
		if res.Supported {
			return e.installer, nil
		}
	}
	return nil, nil
}

// ModType is a classifier selecting downstream deployment behaviour
// (spec.md GLOSSARY, §4.5 step 12). Priority is descending: higher values
// are tested first.
type ModType interface {
	TypeID() string
	Priority() int
	Test(instructions []Instruction) bool
}

// ModTypeRegistry holds game-specific mod-type tests, registered per
// game id. It is the pluggable capability spec.md §1 calls out as an
// external collaborator ("game-specific mod-type tests"); this module
// only owns the dispatch, not any concrete test.
type ModTypeRegistry struct {
	byGame map[string][]ModType
}

func NewModTypeRegistry() *ModTypeRegistry {
	return &ModTypeRegistry{byGame: map[string][]ModType{}}
}

func (r *ModTypeRegistry) Register(gameID string, mt ModType) {
	r.byGame[gameID] = append(r.byGame[gameID], mt)
	sort.SliceStable(r.byGame[gameID], func(i, j int) bool {
		return r.byGame[gameID][i].Priority() > r.byGame[gameID][j].Priority()
	})
}

// Determine asks each registered mod-type for gameID, highest priority
// first, whether it matches instructions; the first match wins, and an
// empty string is returned if none match (spec.md §4.5 step 12).
func (r *ModTypeRegistry) Determine(gameID string, instructions []Instruction) string {
	for _, mt := range r.byGame[gameID] {
		if mt.Test(instructions) {
			return mt.TypeID()
		}
	}
	return ""
}
