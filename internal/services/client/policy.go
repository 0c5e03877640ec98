package client

import (
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/harvestd/internal/common"
)

// RetryPolicy defines retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64 // Fraction of the backoff applied as +/- jitter
}

// NewRetryPolicy creates the default policy: 3 attempts, 500ms doubling up to 10s
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.25,
	}
}

// RetryPolicyFromConfig builds a policy from the [retry] config section
func RetryPolicyFromConfig(cfg common.RetryConfig) *RetryPolicy {
	p := NewRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	p.InitialBackoff = common.ParseDurationOr(cfg.InitialBackoff, p.InitialBackoff)
	p.MaxBackoff = common.ParseDurationOr(cfg.MaxBackoff, p.MaxBackoff)
	if cfg.Multiplier >= 1 {
		p.BackoffMultiplier = cfg.Multiplier
	}
	return p
}

// Backoff returns the delay before the retry that follows the given failed attempt (1-based)
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.Jitter > 0 {
		backoff += backoff * p.Jitter * (rand.Float64()*2 - 1)
	}

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}
