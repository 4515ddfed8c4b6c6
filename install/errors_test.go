package install

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyExtractionError(t *testing.T) {
	ierr, ok := ClassifyExtractionError([]string{"some warning", "Unexpected end of archive"})
	require.True(t, ok)
	assert.Equal(t, KindArchiveBroken, ierr.Kind)

	_, ok = ClassifyExtractionError([]string{"benign notice"})
	assert.False(t, ok)
}

func TestAsInstallError(t *testing.T) {
	inner := NewError(KindSetupError, "no installer")
	wrapped := errors.Wrap(inner, "select-installer")

	found, ok := AsInstallError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindSetupError, found.Kind)

	_, ok = AsInstallError(errors.New("plain error"))
	assert.False(t, ok)
}

func TestReportable(t *testing.T) {
	assert.True(t, NewError(KindUnknown, "oops").Reportable())
	assert.False(t, NewError(KindUserCanceled, "nope").Reportable())

	ignored := NewError(KindUnknown, "oops")
	ignored.Ignored = true
	assert.False(t, ignored.Reportable())
}
