package sftpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureWriterAssemblesOutOfOrderWrites(t *testing.T) {
	var got []byte
	var truncated bool
	var size int64
	cw := newCaptureWriter(func(data []byte, tr bool, total int64) {
		got = data
		truncated = tr
		size = total
	})

	_, err := cw.WriteAt([]byte("world"), 5)
	require.NoError(t, err)
	_, err = cw.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, cw.Close())

	assert.Equal(t, "helloworld", string(got))
	assert.False(t, truncated)
	assert.EqualValues(t, 10, size)
}

func TestCaptureWriterNeverEmitsOnEmptyHandle(t *testing.T) {
	called := false
	cw := newCaptureWriter(func(data []byte, tr bool, total int64) {
		called = true
	})
	require.NoError(t, cw.Close())
	assert.False(t, called, "a handle that received zero bytes must not emit an UploadedFile event")
}

func TestCaptureWriterEmitsExactlyOnceOnClose(t *testing.T) {
	calls := 0
	cw := newCaptureWriter(func(data []byte, tr bool, total int64) {
		calls++
	})
	_, _ = cw.WriteAt([]byte("x"), 0)
	require.NoError(t, cw.Close())
	require.NoError(t, cw.Close())
	assert.Equal(t, 1, calls, "onClose must fire on handle close, never per write")
}

func TestCaptureWriterTruncatesBeyondCap(t *testing.T) {
	var truncated bool
	var size int64
	cw := newCaptureWriter(func(data []byte, tr bool, total int64) {
		truncated = tr
		size = total
	})
	// Write a byte past the cap; the reported total size still reflects
	// the real upload size even though captured bytes are bounded.
	_, err := cw.WriteAt([]byte("x"), maxCapturedBytes+10)
	require.NoError(t, err)
	require.NoError(t, cw.Close())

	assert.True(t, truncated)
	assert.EqualValues(t, maxCapturedBytes+11, size)
}
