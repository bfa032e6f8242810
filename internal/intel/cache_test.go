package intel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCacheFreshAndExpired(t *testing.T) {
	c := newMemCache[int]()
	c.set("1.2.3.4", 42, time.Now())

	v, ok := c.get("1.2.3.4", time.Hour)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.set("1.2.3.4", 42, time.Now().Add(-2*time.Hour))
	_, ok = c.get("1.2.3.4", time.Hour)
	assert.False(t, ok)
}

func TestMemCacheStaleIgnoresTTL(t *testing.T) {
	c := newMemCache[string]()
	c.set("5.6.7.8", "stale-value", time.Now().Add(-48*time.Hour))

	_, fresh := c.get("5.6.7.8", time.Hour)
	assert.False(t, fresh)

	v, ok := c.getStale("5.6.7.8")
	require.True(t, ok)
	assert.Equal(t, "stale-value", v)
}

func TestRateLimiterBoundedTo60Seconds(t *testing.T) {
	rl := newRateLimiter()
	rl.setBackoff("9.9.9.9", 10*time.Minute)

	assert.True(t, rl.blocked("9.9.9.9"))
	assert.False(t, rl.blocked("1.1.1.1"))
	assert.WithinDuration(t, time.Now().Add(60*time.Second), rl.until["9.9.9.9"], 2*time.Second)
}
