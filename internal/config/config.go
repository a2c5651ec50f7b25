package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	// BackendLocal はPostgreSQL上の自前Auth/Dataサービスを使用することを示す。
	BackendLocal = "local"
	// BackendRemote はSupabase互換のマネージドサービスを使用することを示す。
	BackendRemote = "remote"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	Backend        string        `env:"BACKEND" envDefault:"local"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`

	// Database (local backend)
	DatabaseURL string `env:"DATABASE_URL"`

	// Supabase (remote backend)
	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`

	// Session
	SessionFile            string        `env:"SESSION_FILE"`
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"604800"`
	SessionResolveTimeout  time.Duration `env:"SESSION_RESOLVE_TIMEOUT" envDefault:"10s"`
	TokenRefreshMargin     time.Duration `env:"TOKEN_REFRESH_MARGIN" envDefault:"60s"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Rate Limit（req/min）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerHost string `env:"SERVER_HOST" envDefault:"127.0.0.1"`
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Cookie
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 選択したバックエンドの必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	loadDotEnv(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	// Required fields
	var missing []string

	switch cfg.Backend {
	case BackendLocal:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendRemote:
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
	default:
		return nil, fmt.Errorf("unsupported BACKEND %q (expected %q or %q)", cfg.Backend, BackendLocal, BackendRemote)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.SessionMaxAge <= 0 {
		return nil, errors.New("SESSION_MAX_AGE must be positive")
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// Addr はHTTPサーバーのlisten addressを返す。
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// loadDotEnv は指定パスの.envファイルが存在すれば読み込む。
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load .env file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
