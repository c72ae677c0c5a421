package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/travelmate/internal/metrics"
	"github.com/hitoshi/travelmate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	AccessVerifier    middleware.AccessVerifier
	TokenUserFetcher  middleware.TokenUserFetcher
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// 認証
	AuthService  AuthServiceInterface
	OAuthService OAuthServiceInterface

	// セッション・プロフィール
	SessionStore   SessionStore
	ProfileService ProfileServiceInterface
	NameSanitizer  NameSanitizer

	// 運用
	HealthChecker HealthChecker
	Metrics       metrics.Recorder
	Gatherer      prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS
//
// 認証・ソーシャルログインの公開ルートにはレート制限を、
// ユーザーに紐づくルートにはAuthGuardを追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(logger, rec))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	oauthHandler := NewOAuthHandler(deps.OAuthService)
	sessionHandler := NewSessionHandler(deps.SessionStore)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.NameSanitizer)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	guard := middleware.NewAuthMiddleware(deps.AccessVerifier, deps.TokenUserFetcher, rec)
	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limit = deps.RateLimiter.Middleware()
	}

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Group(func(r chi.Router) {
			r.Use(limit)

			r.Post("/auth/signup", authHandler.Signup)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.Refresh)
			r.Get("/auth/apple", authHandler.AppleAuthorize)
			r.Get("/auth/apple/callback", authHandler.AppleCallback)
			r.Post("/auth/apple/callback", authHandler.AppleCodeExchange)

			r.Post("/oauth/signup", oauthHandler.Signup)
			r.Post("/oauth/login", oauthHandler.Login)
			r.Post("/oauth/lookup", oauthHandler.Lookup)
		})

		r.Get("/session", sessionHandler.GetSession)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(guard)

			r.Delete("/auth/account", authHandler.DeleteAccount)
			r.Post("/oauth/apple/revoke", oauthHandler.RevokeApple)
			r.Post("/oauth/google/revoke", oauthHandler.RevokeGoogle)
			r.Delete("/session", sessionHandler.DeleteSession)
			r.Get("/profile/me", profileHandler.GetMe)
			r.Patch("/profile/me", profileHandler.UpdateMe)
		})
	})

	return r
}
