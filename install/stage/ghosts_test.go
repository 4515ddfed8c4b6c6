package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/itchio/wharf/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entrySpec struct {
	name string
	data []byte
}

func writeEntries(t *testing.T, dest string, entries []entrySpec) {
	require.NoError(t, os.MkdirAll(dest, 0o755))
	for _, e := range entries {
		full := filepath.Join(dest, e.name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, e.data, 0o644))
	}
}

func resetAndWrite(t *testing.T, dest string, entries []entrySpec) {
	require.NoError(t, os.RemoveAll(dest))
	writeEntries(t, dest, entries)
}

func assertFolderContents(t *testing.T, dest string, entries []entrySpec) {
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dest, e.name))
		require.NoError(t, err)
		assert.Equal(t, e.data, data)
	}

	found, err := Walk(dest)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[filepath.ToSlash(e.name)] = true
	}
	for _, f := range FilePaths(found) {
		if f == ".modinstall/receipt.json.gz" {
			continue
		}
		assert.True(t, names[f], "unexpected extra file %s", f)
	}
}

func TestSaveAngels(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "mod")

	angel1 := entrySpec{name: "saves/profile.sav", data: []byte{0x01, 0x02}}
	angel2 := entrySpec{name: "config/enable-all.ini", data: []byte("on")}

	oldEntries := []entrySpec{
		{name: "readme.txt", data: []byte("old readme")},
		angel1,
		angel2,
	}

	newEntry := entrySpec{name: "readme2.txt", data: []byte("new readme")}
	newEntries := []entrySpec{newEntry}
	newWithAngels := []entrySpec{newEntry, angel1, angel2}

	consumer := &state.Consumer{}
	taskErr := errors.New("install step failed")

	t.Run("no prior folder, succeeding task", func(t *testing.T) {
		require.NoError(t, os.RemoveAll(dest))
		result, err := SaveAngels(&SaveAngelsParams{Consumer: consumer, Folder: dest}, func() error {
			writeEntries(t, dest, newEntries)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{newEntry.name}, result.Files)
		assertFolderContents(t, dest, newEntries)
	})

	t.Run("no prior folder, failing task", func(t *testing.T) {
		require.NoError(t, os.RemoveAll(dest))
		_, err := SaveAngels(&SaveAngelsParams{Consumer: consumer, Folder: dest}, func() error {
			return taskErr
		})
		require.Error(t, err)
		assert.Equal(t, taskErr, errors.Cause(err))
	})

	t.Run("old folder present but no receipt, no switcheroo attempted", func(t *testing.T) {
		// Without a receipt there's nothing to compare against, so
		// SaveAngels never renames the folder aside (needSwitcheroo is
		// false) — it just writes into the existing folder, leaving
		// whatever was already there untouched alongside the new files.
		resetAndWrite(t, dest, oldEntries)
		result, err := SaveAngels(&SaveAngelsParams{Consumer: consumer, Folder: dest}, func() error {
			writeEntries(t, dest, newEntries)
			return nil
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{newEntry.name, angel1.name, angel2.name, "readme.txt"}, result.Files)
		assertFolderContents(t, dest, append([]entrySpec{newEntry}, oldEntries...))
	})

	t.Run("with receipt, angels restored across the switcheroo", func(t *testing.T) {
		resetAndWrite(t, dest, oldEntries)
		receipt := &Receipt{Files: []string{"readme.txt"}}
		require.NoError(t, receipt.WriteReceipt(dest))

		result, err := SaveAngels(&SaveAngelsParams{Consumer: consumer, Folder: dest}, func() error {
			writeEntries(t, dest, newEntries)
			return nil
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{newEntry.name}, result.Files)
		assertFolderContents(t, dest, newWithAngels)
	})

	t.Run("with receipt, failing task leaves the switcheroo uncleaned", func(t *testing.T) {
		// Matches the teacher's own save_angels.go, FIXME and all: a
		// failing innerTask is not rolled back. The previous install
		// sits untouched under "<folder>-previous"; dest holds whatever
		// innerTask managed to write before failing.
		resetAndWrite(t, dest, oldEntries)
		receipt := &Receipt{Files: []string{"readme.txt"}}
		require.NoError(t, receipt.WriteReceipt(dest))

		_, err := SaveAngels(&SaveAngelsParams{Consumer: consumer, Folder: dest}, func() error {
			writeEntries(t, dest, newEntries)
			return taskErr
		})
		require.Error(t, err)
		assert.Equal(t, taskErr, errors.Cause(err))
		assertFolderContents(t, dest, newEntries)
		assertFolderContents(t, dest+"-previous", oldEntries)
	})
}

func TestBustGhosts(t *testing.T) {
	dir := t.TempDir()
	folder := filepath.Join(dir, "mod")

	kept := entrySpec{name: "keep.txt", data: []byte("keep")}
	ghost := entrySpec{name: "stale/old.txt", data: []byte("stale")}
	writeEntries(t, folder, []entrySpec{kept, ghost})

	receipt := &Receipt{Files: []string{kept.name, ghost.name}}
	consumer := &state.Consumer{}

	err := BustGhosts(&BustGhostsParams{
		Consumer: consumer,
		Folder:   folder,
		NewFiles: []string{kept.name},
		Receipt:  receipt,
	})
	require.NoError(t, err)

	assert.True(t, Exists(filepath.Join(folder, kept.name)))
	assert.False(t, Exists(filepath.Join(folder, ghost.name)))
	assert.False(t, Exists(filepath.Join(folder, "stale")))
}

func TestBustGhostsNoReceipt(t *testing.T) {
	dir := t.TempDir()
	folder := filepath.Join(dir, "mod")
	writeEntries(t, folder, []entrySpec{{name: "a.txt", data: []byte("a")}})

	err := BustGhosts(&BustGhostsParams{
		Consumer: &state.Consumer{},
		Folder:   folder,
		NewFiles: []string{"a.txt"},
		Receipt:  nil,
	})
	require.NoError(t, err)
	assert.True(t, Exists(filepath.Join(folder, "a.txt")))
}
