package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 動画の列挙方式
const (
	DiscoveryPlaylist = "playlist"
	DiscoveryFeed     = "feed"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Provider
	YouTubeAPIKey      string
	ProviderTimeout    time.Duration
	ProviderRatePerSec float64
	VideoDiscovery     string

	// Scan
	ChannelsFile         string
	RulesFile            string
	ScanInterval         time.Duration
	ScanMaxConcurrent    int
	ScanBatchSize        int
	VideosPerChannel     int
	ScanAbortOnMalformed bool
	HighlightChannelIDs  []string
	RetentionDays        int
	CleanupInterval      time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は未設定の変数名をすべて含むエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	if cfg.YouTubeAPIKey == "" {
		missing = append(missing, "YOUTUBE_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.ProviderRatePerSec = getEnvFloat("PROVIDER_RATE_PER_SEC", 5)
	cfg.VideoDiscovery = getEnvString("VIDEO_DISCOVERY", DiscoveryPlaylist)
	if cfg.VideoDiscovery != DiscoveryPlaylist && cfg.VideoDiscovery != DiscoveryFeed {
		return nil, fmt.Errorf("VIDEO_DISCOVERY must be %q or %q: %q", DiscoveryPlaylist, DiscoveryFeed, cfg.VideoDiscovery)
	}

	cfg.ChannelsFile = getEnvString("CHANNELS_FILE", "channels.json")
	cfg.RulesFile = getEnvString("RULES_FILE", "")
	cfg.ScanInterval = getEnvDuration("SCAN_INTERVAL", 24*time.Hour)
	cfg.ScanMaxConcurrent = getEnvInt("SCAN_MAX_CONCURRENT", 8)
	cfg.ScanBatchSize = getEnvInt("SCAN_BATCH_SIZE", 3000)
	cfg.VideosPerChannel = getEnvInt("VIDEOS_PER_CHANNEL", 5)
	cfg.ScanAbortOnMalformed = getEnvBool("SCAN_ABORT_ON_MALFORMED", false)
	cfg.HighlightChannelIDs = getEnvList("HIGHLIGHT_CHANNEL_IDS")
	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 365)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.ScanBatchSize <= 0 {
		return nil, fmt.Errorf("SCAN_BATCH_SIZE must be positive: %d", cfg.ScanBatchSize)
	}
	if cfg.ScanMaxConcurrent <= 0 {
		return nil, fmt.Errorf("SCAN_MAX_CONCURRENT must be positive: %d", cfg.ScanMaxConcurrent)
	}

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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

// getEnvList はカンマ区切りの値を空白を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
