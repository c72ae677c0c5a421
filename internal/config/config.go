package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET,required,notEmpty"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"travelmate"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL  time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Session / OAuth state
	SessionTTLMinutes int           `env:"SESSION_TTL_MINUTES" envDefault:"1440"`
	OAuthStateTTL     time.Duration `env:"OAUTH_STATE_TTL" envDefault:"5m"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`

	// Supabase
	SupabaseURL            string        `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey        string        `env:"SUPABASE_ANON_KEY,required,notEmpty"`
	SupabaseServiceRoleKey string        `env:"SUPABASE_SERVICE_ROLE_KEY,required,notEmpty"`
	ProviderTimeout        time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	// Apple
	AppleClientID    string `env:"APPLE_CLIENT_ID"`
	AppleTeamID      string `env:"APPLE_TEAM_ID"`
	AppleKeyID       string `env:"APPLE_KEY_ID"`
	ApplePrivateKey  string `env:"APPLE_PRIVATE_KEY"`
	AppleRedirectURI string `env:"APPLE_REDIRECT_URI"`

	// Google
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`

	// Rate Limit
	RateLimitAuthPerMin int `env:"RATE_LIMIT_AUTH_PER_MIN" envDefault:"30"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`
}

// SessionTTL はセッション有効期間をtime.Durationで返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定の変数名をまとめたエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) {
			var missing []string
			for _, e := range aggErr.Errors {
				var notSet env.EnvVarIsNotSetError
				var empty env.EmptyEnvVarError
				switch {
				case errors.As(e, &notSet):
					missing = append(missing, notSet.Key)
				case errors.As(e, &empty):
					missing = append(missing, empty.Key)
				}
			}
			if len(missing) > 0 {
				return nil, fmt.Errorf("required environment variables are not set: %v", missing)
			}
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値同士の整合性を検証する。
func (c *Config) validate() error {
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive: %s", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must be longer than ACCESS_TOKEN_TTL (%s)",
			c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive: %d", c.SessionTTLMinutes)
	}
	if c.OAuthStateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive: %s", c.OAuthStateTTL)
	}
	return nil
}

// AppleConfigured はApple連携に必要な設定が揃っているかを返す。
func (c *Config) AppleConfigured() bool {
	return c.AppleClientID != "" && c.AppleTeamID != "" && c.AppleKeyID != "" && c.ApplePrivateKey != ""
}

// GoogleConfigured はGoogle連携に必要な設定が揃っているかを返す。
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
