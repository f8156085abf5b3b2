// Package config loads the service configuration from the environment
// once at startup. Components receive explicit config structs; nothing
// reads the environment ambiently per call.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/facegate/internal/detect"
)

// Config is the full configuration surface.
type Config struct {
	ListenAddr  string
	DatabaseDSN string
	RedisAddr   string

	JWTSecret   string
	JWTAudience string

	// Matching thresholds.
	AcceptThreshold         float64
	AmbiguousThreshold      float64
	FallbackFusionThreshold float64
	TopK                    int

	// Quality gate thresholds.
	LowVarianceCutoff float64
	MinLuminance      float64
	MaxLuminance      float64
	NoiseEdgeDensity  float64
	NoiseStdDev       float64

	// Detection ladder, strict to permissive.
	DetectionLadder []detect.LadderStep

	// External vision judge.
	VisionBaseURL           string
	VisionAPIKey            string
	VisionModel             string
	FallbackTimeout         time.Duration
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	DirectoryRefreshInterval time.Duration
}

// Load reads configuration from the environment. A .env file is loaded
// first when present (development convenience); missing file is not an
// error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=facegate port=5432 sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "redis:6379"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),

		VisionBaseURL: getEnv("VISION_BASE_URL", "https://api.openai.com"),
		VisionAPIKey:  os.Getenv("VISION_API_KEY"),
		VisionModel:   getEnv("VISION_MODEL", "gpt-4o"),
	}

	var err error
	if cfg.AcceptThreshold, err = getFloat("ACCEPT_THRESHOLD", 0.85); err != nil {
		return nil, err
	}
	if cfg.AmbiguousThreshold, err = getFloat("AMBIGUOUS_THRESHOLD", 0.70); err != nil {
		return nil, err
	}
	if cfg.FallbackFusionThreshold, err = getFloat("FALLBACK_FUSION_THRESHOLD", 0.80); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getInt("MATCH_TOP_K", 5); err != nil {
		return nil, err
	}

	if cfg.LowVarianceCutoff, err = getFloat("QUALITY_LOW_VARIANCE_CUTOFF", 8.0); err != nil {
		return nil, err
	}
	if cfg.MinLuminance, err = getFloat("QUALITY_MIN_LUMINANCE", 30.0); err != nil {
		return nil, err
	}
	if cfg.MaxLuminance, err = getFloat("QUALITY_MAX_LUMINANCE", 225.0); err != nil {
		return nil, err
	}
	if cfg.NoiseEdgeDensity, err = getFloat("QUALITY_NOISE_EDGE_DENSITY", 0.45); err != nil {
		return nil, err
	}
	if cfg.NoiseStdDev, err = getFloat("QUALITY_NOISE_STDDEV", 60.0); err != nil {
		return nil, err
	}

	if cfg.DetectionLadder, err = parseLadder(os.Getenv("DETECTION_LADDER")); err != nil {
		return nil, err
	}

	fallbackTimeoutMs, err := getInt("FALLBACK_TIMEOUT_MS", 3000)
	if err != nil {
		return nil, err
	}
	cfg.FallbackTimeout = time.Duration(fallbackTimeoutMs) * time.Millisecond

	if cfg.BreakerFailureThreshold, err = getInt("BREAKER_FAILURE_THRESHOLD", 3); err != nil {
		return nil, err
	}
	breakerCooldownMs, err := getInt("BREAKER_COOLDOWN_MS", 30000)
	if err != nil {
		return nil, err
	}
	cfg.BreakerCooldown = time.Duration(breakerCooldownMs) * time.Millisecond

	refreshSec, err := getInt("DIRECTORY_REFRESH_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.DirectoryRefreshInterval = time.Duration(refreshSec) * time.Second

	if cfg.AmbiguousThreshold >= cfg.AcceptThreshold {
		return nil, fmt.Errorf("AMBIGUOUS_THRESHOLD %.2f must be below ACCEPT_THRESHOLD %.2f", cfg.AmbiguousThreshold, cfg.AcceptThreshold)
	}

	return cfg, nil
}

// parseLadder reads "scale:neighbors:minsize" triples separated by
// commas, e.g. "1.08:5:80,1.15:3:40". Empty input uses the default
// ladder.
func parseLadder(raw string) ([]detect.LadderStep, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return detect.DefaultLadder(), nil
	}

	var ladder []detect.LadderStep
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid detection ladder entry %q", entry)
		}
		scale, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || scale <= 1.0 {
			return nil, fmt.Errorf("invalid scale factor in ladder entry %q", entry)
		}
		neighbors, err := strconv.Atoi(parts[1])
		if err != nil || neighbors < 1 {
			return nil, fmt.Errorf("invalid neighbor count in ladder entry %q", entry)
		}
		minSize, err := strconv.Atoi(parts[2])
		if err != nil || minSize < 8 {
			return nil, fmt.Errorf("invalid minimum size in ladder entry %q", entry)
		}
		ladder = append(ladder, detect.LadderStep{ScaleFactor: scale, MinNeighbors: neighbors, MinSize: minSize})
	}
	return ladder, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return value, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return value, nil
}
