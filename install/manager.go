package install

import (
	"context"

	"github.com/itchio/wharf/state"

	"github.com/peterkwkwan/modinstall/install/dialog"
	"github.com/peterkwkwan/modinstall/install/downloadmgr"
	"github.com/peterkwkwan/modinstall/install/metadata"
)

// ManagerConfig wires the external collaborators spec.md §1 scopes out
// of this module into one Manager.
type ManagerConfig struct {
	Consumer   *state.Consumer
	Extractor  Extractor
	Dialog     dialog.Dialog
	Store      Store
	Metadata   metadata.Lookup
	Download   downloadmgr.Manager
	Events     Events
	Gatherer   Gatherer
	InstallDir string
}

// Manager is the external API surface of spec.md §6:
// register_installer, install, installDependencies,
// installRecommendations. It owns the two pieces of process-wide state
// spec.md §9 calls out — the serial queue and the installer registry —
// created here and torn down with the process.
type Manager struct {
	queue    *Queue
	registry *Registry
	modTypes *ModTypeRegistry
	pipeline *Pipeline
	resolver *Resolver
}

// NewManager wires a Manager from its collaborators. Gatherer and
// Download may be nil if the host never calls installDependencies /
// installRecommendations.
func NewManager(cfg ManagerConfig) *Manager {
	consumer := cfg.Consumer
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	events := cfg.Events
	if events == nil {
		events = NoopEvents{}
	}

	registry := NewRegistry(consumer)
	modTypes := NewModTypeRegistry()

	m := &Manager{
		queue:    NewQueue(),
		registry: registry,
		modTypes: modTypes,
	}

	m.pipeline = &Pipeline{
		Consumer:   consumer,
		Registry:   registry,
		ModTypes:   modTypes,
		Extractor:  cfg.Extractor,
		Dialog:     cfg.Dialog,
		Store:      cfg.Store,
		Metadata:   cfg.Metadata,
		Events:     events,
		InstallDir: cfg.InstallDir,
	}

	m.resolver = &Resolver{
		Consumer: consumer,
		Dialog:   cfg.Dialog,
		Store:    cfg.Store,
		Events:   events,
		Gatherer: cfg.Gatherer,
		Download: cfg.Download,
		Install: func(ctx context.Context, req InstallRequest) (*PipelineResult, error) {
			res := <-m.enqueueInstall(ctx, req)
			return res.Pipeline, res.Err
		},
	}

	return m
}

// RegisterInstaller implements spec.md §6's register_installer.
func (m *Manager) RegisterInstaller(priority int, installer Installer) {
	m.registry.Register(priority, installer)
}

// RegisterModType registers a game-specific mod-type test (spec.md §4.5
// step 12); not part of the external API table but needed to populate
// the ModTypeRegistry that step consults.
func (m *Manager) RegisterModType(gameID string, modType ModType) {
	m.modTypes.Register(gameID, modType)
}

// Install implements spec.md §6's install(...) entry point: it appends
// a pipeline run to the serial queue and returns once it's this run's
// turn and it has finished. processDependencies, when true, chains
// installDependencies(silent=true) after a successful install, the way
// the source's commented-out auto-chain would have (spec.md §9 Open
// Questions — implemented here as an explicit, opt-in continuation
// rather than a guess at hidden behaviour).
func (m *Manager) Install(ctx context.Context, req InstallRequest, gameID, profileID string) (*PipelineResult, error) {
	res := <-m.enqueueInstall(ctx, req)
	if res.Err != nil {
		return res.Pipeline, res.Err
	}

	if req.ProcessDependencies && res.Pipeline != nil && res.Pipeline.Status == StatusSuccess {
		if err := m.resolver.InstallDependencies(ctx, gameID, profileID, res.Pipeline.ModID, true); err != nil {
			m.pipeline.Consumer.Warnf("post-install dependency resolution for %s failed: %s", res.Pipeline.ModID, err.Error())
		}
	}

	return res.Pipeline, nil
}

func (m *Manager) enqueueInstall(ctx context.Context, req InstallRequest) <-chan Result {
	return m.queue.Enqueue(ctx, func(ctx context.Context) (*PipelineResult, error) {
		return m.pipeline.Run(ctx, req)
	})
}

// InstallDependencies implements spec.md §6's installDependencies(...).
func (m *Manager) InstallDependencies(ctx context.Context, gameID, profileID, modID string, silent bool) error {
	return m.resolver.InstallDependencies(ctx, gameID, profileID, modID, silent)
}

// InstallRecommendations implements spec.md §6's installRecommendations(...).
func (m *Manager) InstallRecommendations(ctx context.Context, gameID, profileID, modID string) error {
	return m.resolver.InstallRecommendations(ctx, gameID, profileID, modID)
}
