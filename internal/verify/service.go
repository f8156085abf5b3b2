// Package verify orchestrates one verification request through the
// pipeline: normalize, gate, localize, extract, match, fall back,
// fuse. It is the only component touching external I/O boundaries.
package verify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/facegate/internal/descriptor"
	"github.com/example/facegate/internal/detect"
	"github.com/example/facegate/internal/directory"
	"github.com/example/facegate/internal/fuse"
	"github.com/example/facegate/internal/imaging"
	"github.com/example/facegate/internal/logging"
	"github.com/example/facegate/internal/match"
	"github.com/example/facegate/internal/quality"
	"github.com/example/facegate/internal/repository"
	"github.com/example/facegate/internal/vision"
)

const resultCacheTTL = 5 * time.Minute

// LogRepository defines the persistence operations needed by the
// service.
type LogRepository interface {
	SaveLog(ctx context.Context, log *repository.VerificationLog) error
	FindByCorrelationIDAndUser(ctx context.Context, correlationID, userID string) (*repository.VerificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// SnapshotSource exposes the current identity snapshot.
type SnapshotSource interface {
	Current() *directory.Snapshot
}

// EventEmitter publishes verification outcomes.
type EventEmitter interface {
	Accepted(ctx context.Context, correlationID, identity string)
	Rejected(ctx context.Context, correlationID, reason string)
}

// Service runs the verification pipeline for each request. Pipeline
// state is request-scoped; the identity snapshot and the fallback
// breaker are the only things shared across concurrent requests.
type Service struct {
	gate      *quality.Gate
	localizer *detect.Localizer
	extractor *descriptor.Extractor
	matcher   *match.Matcher
	snapshots SnapshotSource
	fallback  vision.Judge
	fuser     *fuse.Fuser

	repo   LogRepository
	cache  Cache
	events EventEmitter
	logger *zap.Logger

	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewService constructs the verification service.
func NewService(
	gate *quality.Gate,
	localizer *detect.Localizer,
	extractor *descriptor.Extractor,
	matcher *match.Matcher,
	snapshots SnapshotSource,
	fallback vision.Judge,
	fuser *fuse.Fuser,
	repo LogRepository,
	cache Cache,
	events EventEmitter,
	logger *zap.Logger,
) *Service {
	return &Service{
		gate:           gate,
		localizer:      localizer,
		extractor:      extractor,
		matcher:        matcher,
		snapshots:      snapshots,
		fallback:       fallback,
		fuser:          fuser,
		repo:           repo,
		cache:          cache,
		events:         events,
		logger:         logger.Named("verification_service"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

type cachedResult struct {
	CorrelationID string    `json:"correlation_id"`
	UserID        string    `json:"user_id"`
	State         string    `json:"state"`
	Success       bool      `json:"success"`
	Identity      string    `json:"identity,omitempty"`
	Confidence    float64   `json:"confidence"`
	Reasons       []string  `json:"reasons"`
	Hash          string    `json:"sha1_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// Verify runs the full pipeline for one submitted image and returns
// the terminal result. A *imaging.DecodeError means the payload was
// unusable; every other pipeline failure is folded into a well-formed
// result with a reason code.
func (s *Service) Verify(ctx context.Context, userID, claimedIdentity string, image []byte) (*fuse.Result, error) {
	start := time.Now()
	correlationID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "verify.request", correlationID)

	sample, err := imaging.Decode(image)
	if err != nil {
		opLogger.Info("rejected undecodable payload", zap.Error(err))
		return nil, err
	}

	result := s.runPipeline(ctx, correlationID, sample, opLogger)

	hash := sha1.Sum(image)
	log := &repository.VerificationLog{
		CorrelationID:   correlationID,
		UserID:          userID,
		ClaimedIdentity: claimedIdentity,
		MatchedIdentity: result.Identity,
		State:           string(result.State),
		Reasons:         joinReasons(result.Reasons),
		Confidence:      result.Confidence,
		Success:         result.Success,
		LatencyMs:       time.Since(start).Milliseconds(),
		SHA1Hash:        hex.EncodeToString(hash[:]),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("verify.save_log", correlationID, err)
		opLogger.Error("failed to persist verification log", zap.Error(wrapped))
		return nil, wrapped
	}

	s.cacheResult(ctx, correlationID, userID, log, result, opLogger)
	s.emit(ctx, result)

	opLogger.Info("verification completed",
		zap.String("state", string(result.State)),
		zap.Bool("success", result.Success),
		zap.Float64("confidence", result.Confidence),
		zap.Int64("latency_ms", log.LatencyMs))
	return result, nil
}

// runPipeline executes the synchronous local stages and the optional
// fallback consultation.
func (s *Service) runPipeline(ctx context.Context, correlationID string, sample *imaging.Sample, opLogger *zap.Logger) *fuse.Result {
	report := s.gate.Evaluate(sample)
	if !report.Admissible {
		return s.fuser.GateRejected(correlationID, report.Reason)
	}

	region, err := s.localizer.Locate(sample)
	if err != nil {
		return s.fuser.LocalizationFailed(correlationID, report.NoiseSuspect)
	}

	desc, err := s.extractor.Extract(sample, region)
	if err != nil {
		// A degenerate crop carries no more signal than a failed
		// detection.
		opLogger.Warn("descriptor extraction failed", zap.Error(err))
		return s.fuser.LocalizationFailed(correlationID, report.NoiseSuspect)
	}

	candidates := s.matcher.Rank(desc, s.snapshots.Current())
	decision := match.NoMatch
	if len(candidates) > 0 {
		decision = s.matcher.Decide(candidates[0].Score)
	}

	var verdict *vision.Verdict
	fallbackUnavailable := false
	if decision == match.Ambiguous {
		verdict = s.consultFallback(ctx, correlationID, sample, region, candidates[0].Identity, opLogger)
		fallbackUnavailable = verdict == nil
	}

	return s.fuser.FromMatch(correlationID, candidates, decision, verdict, fallbackUnavailable)
}

// consultFallback sends the face crop to the remote judge. Any failure
// returns nil: unavailable, never a rejection or an acceptance.
func (s *Service) consultFallback(ctx context.Context, correlationID string, sample *imaging.Sample, region detect.Region, identity string, opLogger *zap.Logger) *vision.Verdict {
	crop, err := imaging.CropJPEG(sample, region.X, region.Y, region.W, region.H)
	if err != nil {
		opLogger.Warn("failed to encode face crop for fallback", zap.Error(err))
		return nil
	}

	verdict, err := s.fallback.Evaluate(ctx, crop, identity)
	if err != nil {
		if !errors.Is(err, vision.ErrUnavailable) {
			opLogger.Warn("vision fallback error", zap.Error(logging.NewOperationError("verify.vision_fallback", correlationID, err)))
		}
		return nil
	}
	return verdict
}

func (s *Service) cacheResult(ctx context.Context, correlationID, userID string, log *repository.VerificationLog, result *fuse.Result, opLogger *zap.Logger) {
	cached := cachedResult{
		CorrelationID: correlationID,
		UserID:        userID,
		State:         string(result.State),
		Success:       result.Success,
		Identity:      result.Identity,
		Confidence:    result.Confidence,
		Reasons:       result.Reasons,
		Hash:          log.SHA1Hash,
		CreatedAt:     log.CreatedAt,
	}
	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Error("failed to serialize result for cache", zap.Error(err))
		return
	}

	// Cache population is best effort; the persisted log is the source
	// of truth.
	if err := s.withRedisRetry(ctx, correlationID, "cache.set.result", func() error {
		return s.cache.Set(ctx, cacheKey(correlationID), string(serialized), resultCacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache verification result", zap.Error(err))
	}
}

func (s *Service) emit(ctx context.Context, result *fuse.Result) {
	if result.Success {
		s.events.Accepted(ctx, result.CorrelationID, result.Identity)
		return
	}
	s.events.Rejected(ctx, result.CorrelationID, result.Reason())
}

// GetResult retrieves a cached verification outcome or loads it from
// persistence, scoped to the requesting user.
func (s *Service) GetResult(ctx context.Context, userID, correlationID string) (*repository.VerificationLog, error) {
	if cached, err := s.withRedisGet(ctx, correlationID, "cache.get.result", cacheKey(correlationID)); err == nil {
		var payload cachedResult
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(s.logger, "verify.get_result", correlationID).Warn("failed to decode cached result", zap.Error(err))
		} else if payload.UserID == userID {
			return &repository.VerificationLog{
				CorrelationID:   payload.CorrelationID,
				UserID:          payload.UserID,
				MatchedIdentity: payload.Identity,
				State:           payload.State,
				Reasons:         joinReasons(payload.Reasons),
				Confidence:      payload.Confidence,
				Success:         payload.Success,
				SHA1Hash:        payload.Hash,
				CreatedAt:       payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(s.logger, "verify.get_result", correlationID).Warn("failed to read cache", zap.Error(err))
	}

	return s.repo.FindByCorrelationIDAndUser(ctx, correlationID, userID)
}

func cacheKey(correlationID string) string {
	return fmt.Sprintf("verification:%s", correlationID)
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out
}
