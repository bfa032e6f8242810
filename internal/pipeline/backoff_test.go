package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUntilCapped(t *testing.T) {
	b := newBackoff()
	got := []time.Duration{b.next(), b.next(), b.next(), b.next()}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}, got)
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 20; i++ {
		b.next()
	}
	assert.Equal(t, 30*time.Second, b.next())
}

func TestBackoffResetReturnsToInitialDelay(t *testing.T) {
	b := newBackoff()
	b.next()
	b.next()
	b.reset()
	assert.Equal(t, 100*time.Millisecond, b.next())
}
