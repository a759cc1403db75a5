package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

func TestDataDirLock_SecondWriterIsRefused(t *testing.T) {
	dir := t.TempDir()
	first := NewDataDirLock(dir)
	second := NewDataDirLock(dir)

	require.NoError(t, first.TryLock())
	defer first.Unlock()

	err := second.TryLock()

	require.Error(t, err)
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeLockHeld))
	assert.True(t, semerrors.IsFatal(err))
}

func TestDataDirLock_ReleasedLockCanBeRetaken(t *testing.T) {
	dir := t.TempDir()
	first := NewDataDirLock(dir)
	require.NoError(t, first.TryLock())
	require.NoError(t, first.Unlock())
	require.NoError(t, first.Unlock())

	second := NewDataDirLock(dir)
	require.NoError(t, second.TryLock())
	assert.NoError(t, second.Unlock())
}
