package sfs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayDoesNotMutateBase(t *testing.T) {
	fs, err := New()
	require.NoError(t, err)

	overlay := fs.NewOverlay()
	require.NoError(t, afero.WriteFile(overlay, "/root/newfile.txt", []byte("hello"), 0644))

	exists, err := afero.Exists(overlay, "/root/newfile.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	baseExists, err := afero.Exists(fs.Base(), "/root/newfile.txt")
	require.NoError(t, err)
	assert.False(t, baseExists, "write to overlay must not reach the shared base tree")
}

func TestOverlaysAreIndependent(t *testing.T) {
	fs, err := New()
	require.NoError(t, err)

	a := fs.NewOverlay()
	b := fs.NewOverlay()

	require.NoError(t, afero.WriteFile(a, "/tmp/marker", []byte("x"), 0644))

	existsInB, err := afero.Exists(b, "/tmp/marker")
	require.NoError(t, err)
	assert.False(t, existsInB, "overlays for different sessions must not see each other's writes")
}

func TestRequiredCatTargetsSeeded(t *testing.T) {
	fs, err := New()
	require.NoError(t, err)

	for _, p := range []string{"/proc/cpuinfo", "/proc/meminfo", "/etc/os-release", "/etc/passwd", "/etc/shadow"} {
		exists, err := afero.Exists(fs.Base(), p)
		require.NoError(t, err)
		assert.True(t, exists, "%s must be seeded", p)
	}
}
