package fuse

import (
	"testing"

	"github.com/example/facegate/internal/match"
	"github.com/example/facegate/internal/quality"
	"github.com/example/facegate/internal/vision"
)

func candidates(identity string, score float64) []match.Candidate {
	return []match.Candidate{{Identity: identity, Score: score}}
}

func TestGateRejected(t *testing.T) {
	fuser := NewFuser(0.80)

	result := fuser.GateRejected("corr-1", quality.ReasonUniformImage)
	if result.State != StateGatedReject {
		t.Fatalf("unexpected state %s", result.State)
	}
	if result.Success {
		t.Fatal("gate rejection must not succeed")
	}
	if result.Reason() != quality.ReasonUniformImage {
		t.Fatalf("unexpected reason %q", result.Reason())
	}
	if result.CorrelationID != "corr-1" {
		t.Fatalf("unexpected correlation id %q", result.CorrelationID)
	}
}

func TestLocalizationFailedSplitsNoiseFromNoFace(t *testing.T) {
	fuser := NewFuser(0.80)

	noise := fuser.LocalizationFailed("corr-2", true)
	if noise.State != StateGatedReject || noise.Reason() != quality.ReasonUnstructuredNoise {
		t.Fatalf("noise suspect must finalize as unstructured noise, got %s/%q", noise.State, noise.Reason())
	}

	structured := fuser.LocalizationFailed("corr-3", false)
	if structured.State != StateNoFace || structured.Reason() != ReasonNoFaceDetected {
		t.Fatalf("structured image must finalize as no face, got %s/%q", structured.State, structured.Reason())
	}
	if noise.Reason() == structured.Reason() {
		t.Fatal("noise and no-face reasons must stay distinct")
	}
}

func TestFromMatchAccept(t *testing.T) {
	fuser := NewFuser(0.80)

	result := fuser.FromMatch("corr-4", candidates("alice", 0.91), match.Accept, nil, false)
	if result.State != StateAccepted || !result.Success {
		t.Fatalf("expected accepted result, got %+v", result)
	}
	if result.Identity != "alice" {
		t.Fatalf("unexpected identity %q", result.Identity)
	}
	if result.Confidence != 0.91 {
		t.Fatalf("unexpected confidence %f", result.Confidence)
	}
	if result.Reason() != ReasonAcceptThresholdMet {
		t.Fatalf("unexpected reason %q", result.Reason())
	}
}

func TestFromMatchNoMatch(t *testing.T) {
	fuser := NewFuser(0.80)

	result := fuser.FromMatch("corr-5", candidates("alice", 0.42), match.NoMatch, nil, false)
	if result.State != StateNoMatch || result.Success {
		t.Fatalf("expected no-match result, got %+v", result)
	}
	if result.Reason() != ReasonBelowMatchThreshold {
		t.Fatalf("unexpected reason %q", result.Reason())
	}
}

func TestFromMatchEmptyCandidates(t *testing.T) {
	fuser := NewFuser(0.80)

	result := fuser.FromMatch("corr-6", nil, match.NoMatch, nil, false)
	if result.State != StateNoMatch || result.Success {
		t.Fatalf("expected no-match result, got %+v", result)
	}
}

func TestFromMatchAmbiguousConfirmedByFallback(t *testing.T) {
	fuser := NewFuser(0.80)
	verdict := &vision.Verdict{Plausible: true, Confidence: 0.9}

	result := fuser.FromMatch("corr-7", candidates("alice", 0.78), match.Ambiguous, verdict, false)
	if result.State != StateAccepted || !result.Success {
		t.Fatalf("expected fused acceptance, got %+v", result)
	}
	if result.Identity != "alice" {
		t.Fatalf("unexpected identity %q", result.Identity)
	}
	if result.Reason() != ReasonFallbackConfirmed {
		t.Fatalf("unexpected reason %q", result.Reason())
	}
	if result.Confidence < 0.78 || result.Confidence > 1.0 {
		t.Fatalf("fused confidence %f left [score, 1]", result.Confidence)
	}
}

func TestFromMatchAmbiguousNotConfirmed(t *testing.T) {
	fuser := NewFuser(0.80)

	cases := map[string]*vision.Verdict{
		"implausible":    {Plausible: false, Confidence: 0.9},
		"low confidence": {Plausible: true, Confidence: 0.5},
	}
	for name, verdict := range cases {
		result := fuser.FromMatch("corr-8", candidates("alice", 0.78), match.Ambiguous, verdict, false)
		if result.State != StateAmbiguousRejected || result.Success {
			t.Fatalf("%s: expected ambiguous rejection, got %+v", name, result)
		}
		if result.Identity != "" {
			t.Fatalf("%s: rejection must not leak the candidate identity", name)
		}
		if result.Reason() != ReasonAmbiguousNotConfirmed {
			t.Fatalf("%s: unexpected reason %q", name, result.Reason())
		}
	}
}

func TestFromMatchAmbiguousFallbackUnavailable(t *testing.T) {
	fuser := NewFuser(0.80)

	result := fuser.FromMatch("corr-9", candidates("alice", 0.78), match.Ambiguous, nil, true)
	if result.State != StateAmbiguousRejected || result.Success {
		t.Fatalf("unavailable fallback must degrade to rejection, got %+v", result)
	}

	found := false
	for _, reason := range result.Reasons {
		if reason == ReasonFallbackUnavailable {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q in reasons, got %v", ReasonFallbackUnavailable, result.Reasons)
	}
}

func TestFusedConfidenceIsMonotoneInScore(t *testing.T) {
	fuser := NewFuser(0.80)
	verdict := &vision.Verdict{Plausible: true, Confidence: 0.85}

	prev := -1.0
	for _, score := range []float64{0.70, 0.74, 0.78, 0.82, 0.84} {
		result := fuser.FromMatch("corr-10", candidates("alice", score), match.Ambiguous, verdict, false)
		if !result.Success {
			t.Fatalf("score %f: expected fused acceptance", score)
		}
		if result.Confidence < score {
			t.Fatalf("score %f: fused confidence %f fell below the local score", score, result.Confidence)
		}
		if result.Confidence <= prev {
			t.Fatalf("score %f: fused confidence %f is not monotone (prev %f)", score, result.Confidence, prev)
		}
		prev = result.Confidence
	}
}

func TestOnlyLocalThresholdsProduceSuccess(t *testing.T) {
	fuser := NewFuser(0.80)
	confident := &vision.Verdict{Plausible: true, Confidence: 1.0}

	// Even a maximally confident fallback verdict cannot accept a score
	// below the ambiguous band.
	result := fuser.FromMatch("corr-11", candidates("alice", 0.30), match.NoMatch, confident, false)
	if result.Success {
		t.Fatal("fallback verdict alone must never produce success")
	}
	if result.State != StateNoMatch {
		t.Fatalf("unexpected state %s", result.State)
	}
}
