package install

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDestination(t *testing.T) {
	root := "/tmp/mymod.installing"

	rel, err := ValidateDestination(root, "data/textures/foo.dds")
	require.NoError(t, err)
	assert.Equal(t, "data/textures/foo.dds", filepath.ToSlash(rel))

	rel, err = ValidateDestination(root, "/data/a.dat")
	require.NoError(t, err)
	assert.Equal(t, "data/a.dat", filepath.ToSlash(rel))

	_, err = ValidateDestination(root, "../../etc/passwd")
	assert.Error(t, err)

	_, err = ValidateDestination(root, "")
	assert.Error(t, err)

	_, err = ValidateDestination(root, "CON/file.txt")
	assert.Error(t, err)
}

func TestIsKnownArchiveExtension(t *testing.T) {
	assert.True(t, IsKnownArchiveExtension(".zip"))
	assert.True(t, IsKnownArchiveExtension(".7z"))
	assert.True(t, IsKnownArchiveExtension(".RAR"))
	assert.False(t, IsKnownArchiveExtension(".esp"))
	assert.False(t, IsKnownArchiveExtension(""))
}
