package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/itchio/wharf/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func newTestProcessorParams(t *testing.T, stagingRoot, destinationPath string) ProcessorParams {
	return ProcessorParams{
		Consumer:        &state.Consumer{},
		Dialog:          &fakeDialog{},
		StagingRoot:     stagingRoot,
		DestinationPath: destinationPath,
		ModID:           "test-mod",
	}
}

// TestProcessCopyLastIndexIsMove mirrors spec.md §8 properties 2/3: with
// duplicated copy sources, all destinations but the last are copies and
// the last is a move.
func TestProcessCopyLastIndexIsMove(t *testing.T) {
	staging := t.TempDir()
	dest := t.TempDir()
	mustWriteFile(t, filepath.Join(staging, "readme.txt"), "hello")

	instructions := []Instruction{
		{Type: InstructionCopy, Source: "readme.txt", Destination: "readme-copy-1.txt"},
		{Type: InstructionCopy, Source: "readme.txt", Destination: "readme-copy-2.txt"},
		{Type: InstructionCopy, Source: "readme.txt", Destination: "readme.txt"},
	}

	res, err := ProcessInstructions(context.Background(), newTestProcessorParams(t, staging, dest), instructions)
	require.NoError(t, err)
	assert.Empty(t, res.MissingFiles)

	for _, name := range []string{"readme-copy-1.txt", "readme-copy-2.txt", "readme.txt"} {
		b, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(b))
	}

	// the source survived because at least one destination was a copy
	assert.FileExists(t, filepath.Join(staging, "readme.txt"))
}

func TestProcessCopyMissingSource(t *testing.T) {
	staging := t.TempDir()
	dest := t.TempDir()

	instructions := []Instruction{
		{Type: InstructionCopy, Source: "nope.txt", Destination: "nope.txt"},
	}

	res, err := ProcessInstructions(context.Background(), newTestProcessorParams(t, staging, dest), instructions)
	require.NoError(t, err)
	assert.Equal(t, []string{"nope.txt"}, res.MissingFiles)
	assert.NoFileExists(t, filepath.Join(dest, "nope.txt"))
}

func TestProcessMkdirGenerateFileAttributeRule(t *testing.T) {
	staging := t.TempDir()
	dest := t.TempDir()

	rule := ModRule{Type: RuleRequires, Reference: Reference{ID: "other-mod"}}
	instructions := []Instruction{
		{Type: InstructionMkdir, Destination: "empty-dir"},
		{Type: InstructionGenerateFile, Destination: "generated.txt", Data: []byte("generated")},
		{Type: InstructionAttribute, Key: "author", Value: "tester"},
		{Type: InstructionRule, Rule: &rule},
	}

	res, err := ProcessInstructions(context.Background(), newTestProcessorParams(t, staging, dest), instructions)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dest, "empty-dir"))
	b, err := os.ReadFile(filepath.Join(dest, "generated.txt"))
	require.NoError(t, err)
	assert.Equal(t, "generated", string(b))
	assert.Equal(t, "tester", res.Attributes["author"])
	require.Len(t, res.Rules, 1)
	assert.Equal(t, "other-mod", res.Rules[0].Reference.ID)
}

// TestProcessSetModTypeLastWins mirrors spec.md §4.6 step 11.
func TestProcessSetModTypeLastWins(t *testing.T) {
	staging := t.TempDir()
	dest := t.TempDir()

	instructions := []Instruction{
		{Type: InstructionSetModType, Value: "first"},
		{Type: InstructionSetModType, Value: "second"},
	}

	res, err := ProcessInstructions(context.Background(), newTestProcessorParams(t, staging, dest), instructions)
	require.NoError(t, err)
	assert.Equal(t, "second", res.ModType)
}

// TestProcessFatalErrorAborts mirrors spec.md §8 property 4.
func TestProcessFatalErrorAborts(t *testing.T) {
	staging := t.TempDir()
	dest := t.TempDir()
	mustWriteFile(t, filepath.Join(staging, "x"), "x")

	instructions := []Instruction{
		{Type: InstructionError, Value: "fatal", Source: "installer"},
		{Type: InstructionCopy, Source: "x", Destination: "x"},
	}

	_, err := ProcessInstructions(context.Background(), newTestProcessorParams(t, staging, dest), instructions)
	require.Error(t, err)
	ierr, ok := AsInstallError(err)
	require.True(t, ok)
	assert.Equal(t, KindProcessCanceled, ierr.Kind)
	assert.NoFileExists(t, filepath.Join(dest, "x"))
}

// TestProcessIniEditIdempotence mirrors spec.md §8 property 10.
func TestProcessIniEditIdempotence(t *testing.T) {
	staging := t.TempDir()
	dest := t.TempDir()

	instructions := []Instruction{
		{Type: InstructionIniEdit, Destination: "Game.ini", Section: "Display", Key: "bFull", Value: "1"},
		{Type: InstructionIniEdit, Destination: "Game.ini", Section: "Display", Key: "iSize", Value: "1080"},
	}

	_, err := ProcessInstructions(context.Background(), newTestProcessorParams(t, staging, dest), instructions)
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(dest, "Ini Tweaks", "Game.ini"))
	require.NoError(t, err)

	dest2 := t.TempDir()
	_, err = ProcessInstructions(context.Background(), newTestProcessorParams(t, staging, dest2), instructions)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dest2, "Ini Tweaks", "Game.ini"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), "[Display]")
	assert.Contains(t, string(first), "bFull = 1")
}

func TestProcessUnsupportedNotifies(t *testing.T) {
	staging := t.TempDir()
	dest := t.TempDir()
	dlg := &fakeDialog{}

	params := newTestProcessorParams(t, staging, dest)
	params.Dialog = dlg

	instructions := []Instruction{
		{Type: InstructionUnsupported, Source: "weird feature"},
	}

	_, err := ProcessInstructions(context.Background(), params, instructions)
	require.NoError(t, err)
	assert.Len(t, dlg.notifications, 1)
}
