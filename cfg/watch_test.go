package cfg

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_CallsOnChange(t *testing.T) {
	path := writeConfig(t, "[slot_sync]\ninterval_seconds = 1\n")

	var calls atomic.Int32
	w, err := NewWatcher(path, func() { calls.Add(1) })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[slot_sync]\ninterval_seconds = 2\n"), 0644))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "")

	var calls atomic.Int32
	w, err := NewWatcher(path, func() { calls.Add(1) })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	w.Start()
	defer w.Stop()

	other := filepath.Join(filepath.Dir(path), "other.toml")
	require.NoError(t, os.WriteFile(other, []byte("x = 1"), 0644))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeConfig(t, "")
	w, err := NewWatcher(path, func() {})
	require.NoError(t, err)
	w.Start()

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "slotsync.toml"), func() {})
	assert.Error(t, err)
}
