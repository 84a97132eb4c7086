package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerKey(t *testing.T) {
	l := New(2, 2)
	at := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

	assert.True(t, l.AllowAt("AAPL", at))
	assert.True(t, l.AllowAt("AAPL", at))
	assert.False(t, l.AllowAt("AAPL", at), "burst exhausted")
	assert.True(t, l.AllowAt("MSFT", at), "keys are independent")

	assert.True(t, l.AllowAt("AAPL", at.Add(500*time.Millisecond)), "refilled one token")
	assert.Equal(t, 2, l.Len())
}

func TestNonPositiveRateDisablesLimit(t *testing.T) {
	l := New(0, 1)
	at := time.Now()
	for i := 0; i < 100; i++ {
		assert.True(t, l.AllowAt("x", at))
	}
}
