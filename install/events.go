package install

import "context"

// Events is the external bus the pipeline emits to (spec.md §6). Most
// events are fire-and-forget; WillInstallMod must be awaited before any
// filesystem work, and RemoveMod must be awaited before the pipeline
// continues past a replace decision.
type Events interface {
	// WillInstallMod is awaited before any filesystem work starts.
	WillInstallMod(ctx context.Context, gameID, archiveID, modID string, info *ModInfo) error

	DidInstallMod(gameID, archiveID, modID string, modInfo *ModInfo)

	WillInstallDependencies(profileID, modID string, recommended bool)
	DidInstallDependencies(profileID, modID string, recommended bool)

	ModsEnabled(modIDs []string, enabled bool, gameID string)
}

// NoopEvents implements Events by doing nothing; useful as a default for
// hosts that don't care about a subset of the bus.
type NoopEvents struct{}

var _ Events = NoopEvents{}

func (NoopEvents) WillInstallMod(ctx context.Context, gameID, archiveID, modID string, info *ModInfo) error {
	return nil
}
func (NoopEvents) DidInstallMod(gameID, archiveID, modID string, modInfo *ModInfo)    {}
func (NoopEvents) WillInstallDependencies(profileID, modID string, recommended bool)  {}
func (NoopEvents) DidInstallDependencies(profileID, modID string, recommended bool)   {}
func (NoopEvents) ModsEnabled(modIDs []string, enabled bool, gameID string)           {}
