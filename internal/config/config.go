package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitSend    int

	// Message
	MessageMaxLength int
	DisplayTimezone  string
	DisplayLocation  *time.Location

	// Worker
	CleanupInterval time.Duration
	PresenceTTL     time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、またはタイムゾーン名が解決できない場合はエラーを返す。
// 数値・期間の不正値や0以下の値は黙ってデフォルトに戻す。
func Load() (*Config, error) {
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DatabaseURL: required("DATABASE_URL"),
		BaseURL:     required("BASE_URL"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SessionMaxAge = positive("SESSION_MAX_AGE", 86400, strconv.Atoi)
	cfg.RateLimitGeneral = positive("RATE_LIMIT_GENERAL", 120, strconv.Atoi)
	cfg.RateLimitSend = positive("RATE_LIMIT_SEND", 60, strconv.Atoi)
	cfg.MessageMaxLength = positive("MESSAGE_MAX_LENGTH", 4000, strconv.Atoi)
	cfg.CleanupInterval = positive("CLEANUP_INTERVAL", time.Hour, time.ParseDuration)
	cfg.PresenceTTL = positive("PRESENCE_TTL", 30*time.Minute, time.ParseDuration)

	cfg.DisplayTimezone = stringOr("DISPLAY_TIMEZONE", "UTC")
	cfg.LogLevel = stringOr("LOG_LEVEL", "info")
	cfg.ServerPort = stringOr("SERVER_PORT", "8080")
	cfg.CookieDomain = os.Getenv("COOKIE_DOMAIN")
	// カンマ区切りで複数指定できる
	cfg.CORSAllowedOrigin = stringOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// HTTPSで公開している場合のみSecure Cookieにする
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", cfg.DisplayTimezone, err)
	}
	cfg.DisplayLocation = loc

	return cfg, nil
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// positive はkeyをparseで読み込み、未設定・解析失敗・0以下の場合はdefを返す。
func positive[T int | time.Duration](key string, def T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := parse(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
