package vision

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Breaker short-circuits remote judge calls for a cooldown window once
// consecutive failures cross the threshold. Counters are atomic; the
// breaker is the only state shared across concurrent fallback calls.
type Breaker struct {
	threshold int64
	cooldown  time.Duration

	failures  atomic.Int64
	openUntil atomic.Int64 // unix nanos

	now func() time.Time
}

// NewBreaker constructs a breaker. A threshold below 1 defaults to 3.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 3
	}
	return &Breaker{
		threshold: int64(threshold),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a remote call may proceed.
func (b *Breaker) Allow() bool {
	return b.now().UnixNano() >= b.openUntil.Load()
}

// RecordSuccess resets the consecutive-failure count.
func (b *Breaker) RecordSuccess() {
	b.failures.Store(0)
}

// RecordFailure counts a failure and opens the breaker when the
// threshold is crossed.
func (b *Breaker) RecordFailure() {
	if b.failures.Add(1) >= b.threshold {
		b.openUntil.Store(b.now().Add(b.cooldown).UnixNano())
		b.failures.Store(0)
	}
}

// Fallback decorates a Judge with the breaker. It is what the
// verification service talks to.
type Fallback struct {
	judge   Judge
	breaker *Breaker
	logger  *zap.Logger
}

// NewFallback constructs the breaker-guarded fallback.
func NewFallback(judge Judge, breaker *Breaker, logger *zap.Logger) *Fallback {
	return &Fallback{
		judge:   judge,
		breaker: breaker,
		logger:  logger.Named("vision_fallback"),
	}
}

// Evaluate consults the remote judge unless the breaker is open. Any
// failure is recorded and surfaced as ErrUnavailable.
func (f *Fallback) Evaluate(ctx context.Context, faceJPEG []byte, claimedIdentity string) (*Verdict, error) {
	if !f.breaker.Allow() {
		return nil, ErrUnavailable
	}

	verdict, err := f.judge.Evaluate(ctx, faceJPEG, claimedIdentity)
	if err != nil {
		f.breaker.RecordFailure()
		f.logger.Warn("vision fallback failed", zap.Error(err))
		return nil, ErrUnavailable
	}

	f.breaker.RecordSuccess()
	return verdict, nil
}
