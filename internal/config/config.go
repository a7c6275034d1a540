package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストレージドライバ
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Storage
	StorageDriver string
	StoragePath   string
	DatabaseURL   string
	RedisURL      string
	RedisPrefix   string
	StorageScope  string

	// Session
	TokenExpirySkew time.Duration

	// Query cache
	QueryStaleTime     time.Duration
	QueryGCTime        time.Duration
	QuerySweepInterval time.Duration

	// Booking
	MatchingDelay   time.Duration
	CityCatalogPath string

	// Relay
	RelayPort          string
	CORSAllowedOrigins []string
	RelayRateLimit     int // req/min/IP
	RelayRateBurst     int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envが存在しない場合は無視する
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("CITADEL_API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "CITADEL_API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	cfg.StorageDriver = strings.ToLower(getEnvString("STORAGE_DRIVER", StorageFile))
	cfg.StoragePath = getEnvString("STORAGE_PATH", defaultStoragePath())
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RedisPrefix = getEnvString("REDIS_PREFIX", "citadel")
	cfg.StorageScope = getEnvString("STORAGE_SCOPE", "default")
	cfg.TokenExpirySkew = getEnvDuration("TOKEN_EXPIRY_SKEW", 30*time.Second)
	cfg.QueryStaleTime = getEnvDuration("QUERY_STALE_TIME", 1*time.Minute)
	cfg.QueryGCTime = getEnvDuration("QUERY_GC_TIME", 5*time.Minute)
	cfg.QuerySweepInterval = getEnvDuration("QUERY_SWEEP_INTERVAL", 1*time.Minute)
	cfg.MatchingDelay = getEnvDuration("MATCHING_DELAY", 3*time.Second)
	cfg.CityCatalogPath = getEnvString("CITY_CATALOG_PATH", "")
	cfg.RelayPort = getEnvString("RELAY_PORT", "8080")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.RelayRateLimit = getEnvInt("RELAY_RATE_LIMIT", 120)
	cfg.RelayRateBurst = getEnvInt("RELAY_RATE_BURST", 60)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	switch cfg.StorageDriver {
	case StorageMemory, StorageFile:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", StoragePostgres)
		}
	case StorageRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when STORAGE_DRIVER=%s", StorageRedis)
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER: %q", cfg.StorageDriver)
	}

	return cfg, nil
}

// defaultStoragePath はファイルストアの既定パスを返す。
// ユーザー設定ディレクトリが取得できない場合はカレントディレクトリを使う。
func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "citadel-state.json"
	}
	return dir + string(os.PathSeparator) + "citadel" + string(os.PathSeparator) + "state.json"
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

// getEnvList はカンマ区切りの環境変数を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
