package shared

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

type BackoffConfig struct {
	Initial     time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Normalize fills in defaults for zero-valued fields.
func (c BackoffConfig) Normalize() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 8 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Next returns the delay that follows cur, capped at MaxDelay.
func (c BackoffConfig) Next(cur time.Duration) time.Duration {
	next := cur * 2
	if next > c.MaxDelay {
		return c.MaxDelay
	}
	return next
}
