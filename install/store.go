package install

// Mod is the persisted view of one installed mod the store exposes back
// to the Install Manager.
type Mod struct {
	ID            string
	Attributes    *ModInfo
	Rules         []ModRule
	FileOverrides []string
	Enabled       bool
	ModType       string
	NewestFileID  int64
	FileID        int64
	CustomVariant string
}

// Store is the external collaborator spec.md §1/§6 describes: getters
// and action-dispatch over `persistent.mods[gameId][modId].*` and
// profile mod-state. This module never touches a database itself — the
// host wires a concrete implementation (SQL, flat files, whatever).
type Store interface {
	// GetMod returns the mod registered under (gameID, modID), or nil if
	// there isn't one.
	GetMod(gameID, modID string) (*Mod, error)

	// PutMod persists mod under (gameID, modID), overwriting whatever was
	// there.
	PutMod(gameID string, mod *Mod) error

	// RemoveMod deletes the mod and emits remove-mod (spec.md §6); it
	// must be awaited by callers.
	RemoveMod(gameID, modID string) error

	// SetEnabled toggles whether modIDs are active in profile; mirrors
	// the mods-enabled event (spec.md §6).
	SetEnabled(gameID, profileID string, modIDs []string, enabled bool) error

	// IsEnabled reports whether modID is currently enabled in profile.
	IsEnabled(gameID, profileID, modID string) (bool, error)
}
