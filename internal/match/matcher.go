// Package match ranks a query descriptor against the registered
// identity snapshot.
package match

import (
	"sort"

	"github.com/example/facegate/internal/descriptor"
	"github.com/example/facegate/internal/directory"
)

// Candidate is one ranked identity with its best-sample similarity.
type Candidate struct {
	Identity        string
	Score           float64
	DescriptorIndex int
}

// Decision classifies a best-candidate score against the configured
// thresholds.
type Decision int

const (
	// NoMatch means the best score fell below the ambiguous threshold.
	NoMatch Decision = iota
	// Ambiguous means the score is plausible but not conclusive; the
	// external fallback gets consulted.
	Ambiguous
	// Accept means the score clears the acceptance threshold outright.
	Accept
)

// Matcher compares descriptors by cosine similarity, scoring each
// identity by its best enrolled sample.
type Matcher struct {
	acceptThreshold    float64
	ambiguousThreshold float64
	topK               int
}

// NewMatcher constructs a matcher. topK bounds the retained candidate
// list; values below 1 default to 5.
func NewMatcher(acceptThreshold, ambiguousThreshold float64, topK int) *Matcher {
	if topK < 1 {
		topK = 5
	}
	return &Matcher{
		acceptThreshold:    acceptThreshold,
		ambiguousThreshold: ambiguousThreshold,
		topK:               topK,
	}
}

// AcceptThreshold returns the configured acceptance threshold.
func (m *Matcher) AcceptThreshold() float64 { return m.acceptThreshold }

// AmbiguousThreshold returns the configured ambiguous-band floor.
func (m *Matcher) AmbiguousThreshold() float64 { return m.ambiguousThreshold }

// Rank scores every identity in the snapshot and returns the top-K
// candidates sorted descending by score. Ties break on identity key so
// repeated calls over the same snapshot return identical rankings.
func (m *Matcher) Rank(query descriptor.Descriptor, snap *directory.Snapshot) []Candidate {
	if snap.Empty() {
		return nil
	}

	candidates := make([]Candidate, 0, len(snap.Identities))
	for _, identity := range snap.Identities {
		best := Candidate{Identity: identity.Key, Score: -1}
		for i, enrolled := range identity.Descriptors {
			if score := descriptor.Cosine(query, enrolled); score > best.Score {
				best.Score = score
				best.DescriptorIndex = i
			}
		}
		if best.Score >= -1 {
			candidates = append(candidates, best)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Identity < candidates[j].Identity
	})

	if len(candidates) > m.topK {
		candidates = candidates[:m.topK]
	}
	return candidates
}

// Decide classifies a best-candidate score.
func (m *Matcher) Decide(score float64) Decision {
	switch {
	case score >= m.acceptThreshold:
		return Accept
	case score >= m.ambiguousThreshold:
		return Ambiguous
	default:
		return NoMatch
	}
}
