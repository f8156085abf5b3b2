// Package vision delegates ambiguous verifications to a remote
// multimodal judge, under a strict timeout and a circuit breaker.
// Whatever goes wrong on this path degrades to "unavailable"; it never
// turns into an acceptance on its own.
package vision

import (
	"context"
	"errors"
)

// ErrUnavailable signals that the fallback produced no verdict: the
// breaker was open, the call timed out, or the response was unusable.
// Callers fall back to local-threshold policy.
var ErrUnavailable = errors.New("vision fallback unavailable")

// Verdict is the judge's plausibility call for one claimed identity.
type Verdict struct {
	Plausible  bool
	Confidence float64
	Rationale  string
}

// Judge answers whether a face crop plausibly depicts the claimed
// enrolled identity. It is a closed question about one identity, never
// an open-set search.
type Judge interface {
	Evaluate(ctx context.Context, faceJPEG []byte, claimedIdentity string) (*Verdict, error)
}
