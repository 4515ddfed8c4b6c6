package install

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModInfoDecode(t *testing.T) {
	info := NewModInfo()
	info.Set("name", "Better Lighting")
	info.Set("version", "1.2.0")

	type decoded struct {
		Name    string `cfg:"name"`
		Version string `cfg:"version"`
	}
	var out decoded
	require.NoError(t, info.Decode("cfg", &out))
	assert.Equal(t, "Better Lighting", out.Name)
	assert.Equal(t, "1.2.0", out.Version)
}

func TestModInfoClone(t *testing.T) {
	info := NewModInfo()
	info.Set("version", "1.0")
	info.Set("fileName", "foo.zip")
	info.Set("custom", "keepme")

	cloned := info.Clone("version", "fileName")

	_, ok := cloned.Get("version")
	assert.False(t, ok)
	_, ok = cloned.Get("fileName")
	assert.False(t, ok)
	v, ok := cloned.Get("custom")
	assert.True(t, ok)
	assert.Equal(t, "keepme", v)

	// original untouched
	_, ok = info.Get("version")
	assert.True(t, ok)
}

func TestFriendlyInstallErrorNonWindows(t *testing.T) {
	msg := `could not write to C:\Users\me\AppData\Roaming\Browser Assistant\file.dll`
	assert.Equal(t, msg, FriendlyInstallError(msg))
}
