package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Refresh
	RefreshBatchSize     int
	RefreshCycleInterval time.Duration

	// Session
	SessionRetention       time.Duration
	SessionJanitorInterval time.Duration

	// TTL
	TTLFloorMinutes   int
	TTLCeilingMinutes int
	TTLDefaultMinutes int

	// Statistics
	PostingWindowDays int
	StatsMaxAge       time.Duration
	HousekeepInterval time.Duration

	// Health
	HealthEMAAlpha       float64
	AutoDisableThreshold int
	BackoffBase          time.Duration
	BackoffMax           time.Duration

	// Priority
	PriorityWeightUnread     float64
	PriorityWeightEngagement float64
	PriorityWeightUrgency    float64
	PriorityWeightRead       float64
	PriorityUnreadSaturation int

	// Rate Limit
	RateLimitGeneral int
	RateLimitRefresh int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.RefreshBatchSize = getEnvInt("REFRESH_BATCH_SIZE", 5)
	cfg.RefreshCycleInterval = getEnvDuration("REFRESH_CYCLE_INTERVAL", time.Minute)
	cfg.SessionRetention = getEnvDuration("SESSION_RETENTION", 5*time.Minute)
	cfg.SessionJanitorInterval = getEnvDuration("SESSION_JANITOR_INTERVAL", 30*time.Second)
	cfg.TTLFloorMinutes = getEnvInt("TTL_FLOOR_MINUTES", 15)
	cfg.TTLCeilingMinutes = getEnvInt("TTL_CEILING_MINUTES", 1440)
	cfg.TTLDefaultMinutes = getEnvInt("TTL_DEFAULT_MINUTES", 60)
	cfg.PostingWindowDays = getEnvInt("POSTING_WINDOW_DAYS", 14)
	cfg.StatsMaxAge = getEnvDuration("STATS_MAX_AGE", 6*time.Hour)
	cfg.HousekeepInterval = getEnvDuration("HOUSEKEEP_INTERVAL", time.Hour)
	cfg.HealthEMAAlpha = getEnvFloat("HEALTH_EMA_ALPHA", 0.3)
	cfg.AutoDisableThreshold = getEnvInt("AUTO_DISABLE_THRESHOLD", 5)
	cfg.BackoffBase = getEnvDuration("BACKOFF_BASE", 30*time.Second)
	cfg.BackoffMax = getEnvDuration("BACKOFF_MAX", 5*time.Minute)
	cfg.PriorityWeightUnread = getEnvFloat("PRIORITY_WEIGHT_UNREAD", 0.4)
	cfg.PriorityWeightEngagement = getEnvFloat("PRIORITY_WEIGHT_ENGAGEMENT", 0.3)
	cfg.PriorityWeightUrgency = getEnvFloat("PRIORITY_WEIGHT_URGENCY", 0.2)
	cfg.PriorityWeightRead = getEnvFloat("PRIORITY_WEIGHT_READ", 0.1)
	cfg.PriorityUnreadSaturation = getEnvInt("PRIORITY_UNREAD_SATURATION", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRefresh = getEnvInt("RATE_LIMIT_REFRESH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
