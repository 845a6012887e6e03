package resolver

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// txRetryPolicy retries serializable-transaction conflicts a small bounded
// number of times with jittered exponential backoff.
type txRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func newTxRetryPolicy() *txRetryPolicy {
	return &txRetryPolicy{
		maxAttempts: 3,
		baseDelay:   50 * time.Millisecond,
		maxDelay:    time.Second,
	}
}

// Backoff returns the wait duration before the next attempt (0-based).
func (p *txRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
