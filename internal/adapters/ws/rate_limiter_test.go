package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageRateLimiter_AllowUpToLimit(t *testing.T) {
	rl := NewMessageRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("c1"), "attempt %d", i)
	}
	assert.False(t, rl.Allow("c1"))

	// Other connections have their own window.
	assert.True(t, rl.Allow("c2"))
}

func TestMessageRateLimiter_WindowSlides(t *testing.T) {
	rl := NewMessageRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("c1"))
}

func TestMessageRateLimiter_Forget(t *testing.T) {
	rl := NewMessageRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))

	rl.Forget("c1")
	assert.True(t, rl.Allow("c1"))
}
