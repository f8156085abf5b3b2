package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// VerificationLog is one persisted verification outcome, written for
// audit regardless of verdict.
type VerificationLog struct {
	ID              uint      `gorm:"primaryKey"`
	CorrelationID   string    `gorm:"column:correlation_id;uniqueIndex;size:64"`
	UserID          string    `gorm:"column:user_id;index;size:64"`
	ClaimedIdentity string    `gorm:"column:claimed_identity;size:64"`
	MatchedIdentity string    `gorm:"column:matched_identity;size:64"`
	State           string    `gorm:"column:state;size:32"`
	Reasons         string    `gorm:"column:reasons;type:text"`
	Confidence      float64   `gorm:"column:confidence"`
	Success         bool      `gorm:"column:success"`
	LatencyMs       int64     `gorm:"column:latency_ms"`
	SHA1Hash        string    `gorm:"column:sha1_hash;index;size:40"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationLog) TableName() string {
	return "verification_logs"
}

// MetricsAggregation holds the aggregate values computed over persisted
// verification logs.
type MetricsAggregation struct {
	TotalCount       int64
	AcceptedCount    int64
	AverageConfidence float64
	AverageLatencyMs float64
}

// VerificationRepository provides persistence APIs for verification
// logs.
type VerificationRepository struct {
	db *gorm.DB
}

// NewVerificationRepository creates a new repository instance.
func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// AutoMigrate ensures the verification log schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationLog{})
}

// SaveLog persists a verification log entry.
func (r *VerificationRepository) SaveLog(ctx context.Context, log *VerificationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByCorrelationIDAndUser retrieves a verification log scoped to its
// owner.
func (r *VerificationRepository) FindByCorrelationIDAndUser(ctx context.Context, correlationID, userID string) (*VerificationLog, error) {
	var log VerificationLog
	if err := r.db.WithContext(ctx).First(&log, "correlation_id = ? AND user_id = ?", correlationID, userID).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals over all persisted logs.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation

	row := r.db.WithContext(ctx).
		Model(&VerificationLog{}).
		Select("COUNT(*) AS total_count, " +
			"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS accepted_count, " +
			"COALESCE(AVG(confidence), 0) AS average_confidence, " +
			"COALESCE(AVG(latency_ms), 0) AS average_latency_ms").
		Row()
	if err := row.Scan(&agg.TotalCount, &agg.AcceptedCount, &agg.AverageConfidence, &agg.AverageLatencyMs); err != nil {
		return nil, err
	}
	return &agg, nil
}
