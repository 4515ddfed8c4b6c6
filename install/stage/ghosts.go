package stage

import (
	"os"
	"path/filepath"

	"github.com/itchio/wharf/state"
	"github.com/pkg/errors"
)

// BustGhostsParams groups the inputs needed to remove files that used to
// be part of a mod but weren't written by the latest install.
type BustGhostsParams struct {
	Consumer *state.Consumer
	Folder   string
	NewFiles []string
	Receipt  *Receipt
}

// BustGhosts removes "ghost" files: present in the previous receipt, but
// absent from the files the latest install just wrote. Without a receipt
// to compare against, nothing is removed — we can't tell ghosts from
// files the user added on purpose. Teacher: installer/bfs/bust_ghosts.go.
func BustGhosts(params *BustGhostsParams) error {
	if !params.Receipt.HasFiles() {
		params.Consumer.Infof("no previous receipt, leaving potential ghosts alone")
		return nil
	}

	ghosts := Difference(params.NewFiles, params.Receipt.Files)
	if len(ghosts) == 0 {
		params.Consumer.Infof("no ghosts to bust")
		return nil
	}

	for _, ghost := range ghosts {
		abs := filepath.Join(params.Folder, ghost)
		if err := os.Remove(abs); err != nil {
			params.Consumer.Infof("leaving ghost file behind (%s): %s", abs, err.Error())
		}
	}

	dt := NewDirTree(params.Folder)
	dt.CommitFiles(ghosts)
	for _, dir := range dt.ListRelativeDirs() {
		if dir == "." {
			continue
		}
		// Remove fails silently on a non-empty directory, which is fine:
		// some of these candidates still hold files the ghost sweep didn't
		// touch.
		os.Remove(filepath.Join(params.Folder, dir))
	}

	return nil
}

// SaveAngelsParams groups the inputs for a reinstall-over-existing-folder
// switcheroo.
type SaveAngelsParams struct {
	Consumer *state.Consumer
	Folder   string
}

// SaveAngelsFunc performs the actual install into params.Folder.
type SaveAngelsFunc func() error

// SaveAngelsResult reports what ended up installed.
type SaveAngelsResult struct {
	Files []string
}

// SaveAngels implements the reinstall-over-existing-folder dance
// (SPEC_FULL.md §C.1): the previous install folder is moved aside to
// "<folder>-previous", innerTask populates a fresh folder, and any file
// that existed in the previous install but that neither the fresh install
// wrote nor the previous receipt lists (an "angel" — typically a save file
// or user config dropped next to the mod) is moved back in. Files the
// receipt lists are not moved back. Teacher: installer/bfs/save_angels.go.
func SaveAngels(params *SaveAngelsParams, innerTask SaveAngelsFunc) (*SaveAngelsResult, error) {
	destPath := params.Folder

	receipt, err := ReadReceipt(destPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading receipt before switcheroo")
	}

	needSwitcheroo := receipt.HasFiles() && Exists(destPath)

	previousPath := destPath + "-previous"
	if needSwitcheroo {
		if err := os.Rename(destPath, previousPath); err != nil {
			return nil, errors.Wrap(err, "renaming previous install aside")
		}
	}

	if err := Mkdir(destPath); err != nil {
		return nil, errors.Wrap(err, "creating fresh install folder")
	}

	type walkOutcome struct {
		entries []Entry
		err     error
	}
	walkResult := make(chan walkOutcome, 1)
	if needSwitcheroo {
		go func() {
			entries, err := Walk(previousPath)
			walkResult <- walkOutcome{entries: entries, err: err}
		}()
	}

	if err := innerTask(); err != nil {
		return nil, errors.Wrap(err, "running install inside switcheroo")
	}

	newEntries, err := Walk(destPath)
	if err != nil {
		return nil, errors.Wrap(err, "walking fresh install")
	}
	newPaths := FilePaths(newEntries)

	if needSwitcheroo {
		outcome := <-walkResult
		if outcome.err != nil {
			return nil, errors.Wrap(outcome.err, "walking previous install")
		}
		previousPaths := FilePaths(outcome.entries)
		knownPaths := append(append([]string{}, newPaths...), receipt.Files...)
		angels := Difference(knownPaths, previousPaths)

		if len(angels) > 0 {
			params.Consumer.Infof("saving %d angel file(s) from previous install", len(angels))
			saveAngels(params, previousPath, angels)
		} else {
			params.Consumer.Infof("no angels to save")
		}

		if err := os.RemoveAll(previousPath); err != nil {
			params.Consumer.Infof("could not clean up %s: %s", previousPath, err.Error())
		}
	}

	return &SaveAngelsResult{Files: newPaths}, nil
}

func saveAngels(params *SaveAngelsParams, previousPath string, angels []string) {
	dt := NewDirTree(params.Folder)
	for _, angel := range angels {
		dark := filepath.Join(previousPath, angel)
		light := filepath.Join(params.Folder, angel)

		if err := dt.EnsureParents(angel); err != nil {
			params.Consumer.Warnf("could not save angel %s: %s", angel, err.Error())
			continue
		}
		if err := os.Rename(dark, light); err != nil {
			params.Consumer.Warnf("could not save angel %s: %s", angel, err.Error())
		}
	}
}
