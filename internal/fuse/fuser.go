// Package fuse turns the pipeline's quality, match and fallback signals
// into one terminal verdict with auditable reason codes.
package fuse

import (
	"time"

	"github.com/example/facegate/internal/match"
	"github.com/example/facegate/internal/quality"
	"github.com/example/facegate/internal/vision"
)

// State is the fuser's state machine position. Every constructor on
// Fuser returns a terminal state; PENDING never leaves the package.
type State string

const (
	StatePending           State = "PENDING"
	StateGatedReject       State = "GATED_REJECT"
	StateNoFace            State = "NO_FACE"
	StateNoMatch           State = "NO_MATCH"
	StateAccepted          State = "ACCEPTED"
	StateAmbiguousRejected State = "AMBIGUOUS_REJECTED"
)

// Reason codes contributed by matching and fallback fusion. Quality
// reason codes live in the quality package.
const (
	ReasonNoFaceDetected        = "no_face_detected"
	ReasonBelowMatchThreshold   = "below_match_threshold"
	ReasonAcceptThresholdMet    = "accept_threshold_met"
	ReasonFallbackConfirmed     = "fallback_confirmed"
	ReasonFallbackUnavailable   = "fallback_unavailable"
	ReasonAmbiguousNotConfirmed = "ambiguous_not_confirmed"
)

// Result is the final, immutable outcome of one verification request.
type Result struct {
	CorrelationID string
	State         State
	Success       bool
	Identity      string
	Confidence    float64
	Reasons       []string
	CompletedAt   time.Time
}

// Reason returns the primary reason code.
func (r *Result) Reason() string {
	if len(r.Reasons) == 0 {
		return ""
	}
	return r.Reasons[0]
}

// Fuser builds terminal results. The only path to Success=true runs
// through an identity whose local similarity score cleared a threshold;
// a fallback verdict alone can never accept.
type Fuser struct {
	fusionThreshold float64
}

// NewFuser constructs a fuser with the given fallback fusion threshold.
func NewFuser(fusionThreshold float64) *Fuser {
	return &Fuser{fusionThreshold: fusionThreshold}
}

// GateRejected finalizes a quality-gate rejection.
func (f *Fuser) GateRejected(correlationID, reason string) *Result {
	return terminal(correlationID, StateGatedReject, false, "", 0, reason)
}

// LocalizationFailed finalizes an exhausted detection ladder. A sample
// the gate flagged as a noise suspect is rejected as unstructured
// noise; a structured image with no detectable face is no_face_detected.
// The two codes are mutually exclusive.
func (f *Fuser) LocalizationFailed(correlationID string, noiseSuspect bool) *Result {
	if noiseSuspect {
		return terminal(correlationID, StateGatedReject, false, "", 0, quality.ReasonUnstructuredNoise)
	}
	return terminal(correlationID, StateNoFace, false, "", 0, ReasonNoFaceDetected)
}

// FromMatch finalizes the match stage, consulting the fallback verdict
// only inside the ambiguous band. verdict is nil when the fallback was
// not invoked or was unavailable; fallbackUnavailable distinguishes the
// latter for the audit trail.
func (f *Fuser) FromMatch(correlationID string, candidates []match.Candidate, decision match.Decision, verdict *vision.Verdict, fallbackUnavailable bool) *Result {
	if len(candidates) == 0 {
		return terminal(correlationID, StateNoMatch, false, "", 0, ReasonBelowMatchThreshold)
	}

	best := candidates[0]
	score := best.Score
	if score < 0 {
		score = 0
	}

	switch decision {
	case match.Accept:
		return terminal(correlationID, StateAccepted, true, best.Identity, score, ReasonAcceptThresholdMet)

	case match.Ambiguous:
		if verdict != nil && verdict.Plausible && verdict.Confidence >= f.fusionThreshold {
			// Fused confidence grows monotonically with the local
			// score and never falls below it.
			confidence := score + (1-score)*verdict.Confidence
			return terminal(correlationID, StateAccepted, true, best.Identity, confidence, ReasonFallbackConfirmed)
		}
		reasons := []string{ReasonAmbiguousNotConfirmed}
		if fallbackUnavailable {
			reasons = append(reasons, ReasonFallbackUnavailable)
		}
		return terminal(correlationID, StateAmbiguousRejected, false, "", score, reasons...)

	default:
		return terminal(correlationID, StateNoMatch, false, "", score, ReasonBelowMatchThreshold)
	}
}

func terminal(correlationID string, state State, success bool, identity string, confidence float64, reasons ...string) *Result {
	return &Result{
		CorrelationID: correlationID,
		State:         state,
		Success:       success,
		Identity:      identity,
		Confidence:    confidence,
		Reasons:       reasons,
		CompletedAt:   time.Now().UTC(),
	}
}
