// Package stage implements the staging-directory filesystem helpers
// backing the Install Pipeline's two-phase atomic staging (spec.md §1,
// §9): walking a freshly-extracted tree, computing which files survive a
// reinstall ("angels"), and which don't anymore ("ghosts"). Grounded on
// the teacher's installer/bfs package.
package stage

import "os"

// Exists reports whether path exists, without following symlinks (it
// uses os.Lstat, so a dangling symlink counts) — mirrors the teacher's bfs.Exists
// (installer/bfs/fshelp.go), used to decide whether a switcheroo rename
// is possible.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Mkdir creates path and any missing parents.
func Mkdir(path string) error {
	return os.MkdirAll(path, 0o755)
}
