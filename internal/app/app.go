package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/travelmate/internal/auth"
	"github.com/hitoshi/travelmate/internal/config"
	"github.com/hitoshi/travelmate/internal/database"
	"github.com/hitoshi/travelmate/internal/handler"
	"github.com/hitoshi/travelmate/internal/logger"
	"github.com/hitoshi/travelmate/internal/metrics"
	"github.com/hitoshi/travelmate/internal/middleware"
	"github.com/hitoshi/travelmate/internal/oauthstate"
	"github.com/hitoshi/travelmate/internal/provider"
	"github.com/hitoshi/travelmate/internal/repository"
	"github.com/hitoshi/travelmate/internal/security"
	"github.com/hitoshi/travelmate/internal/session"
	"github.com/hitoshi/travelmate/internal/social"
	"github.com/hitoshi/travelmate/internal/token"
	"github.com/hitoshi/travelmate/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("apple_configured", cfg.AppleConfigured()),
		slog.Bool("google_configured", cfg.GoogleConfigured()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// server はserveモードで組み立てた依存関係をまとめたもの。
type server struct {
	handler  http.Handler
	cleanup  *cleanup.CleanupJob
	limiter  *middleware.RateLimiter
	sessions *session.Store
	states   *oauthstate.Store
	registry *prometheus.Registry
}

// newServer は設定とDB接続から全依存関係をワイヤリングする。
// DBへの接続は行わないため、接続確認は呼び出し側で行う。
func newServer(cfg *config.Config, db *sql.DB, log *slog.Logger) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリ・インメモリストア
	profileRepo := repository.NewPostgresProfileRepo(db)
	sessions := session.NewStore(cfg.SessionTTL())
	states := oauthstate.NewStore(cfg.OAuthStateTTL)

	// 3. トークン
	tokens, err := token.NewService(token.Config{
		AccessSecret:  []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	// 4. 外部IdP・ソーシャルプロバイダー
	idp := provider.NewClient(provider.Config{
		BaseURL:        cfg.SupabaseURL,
		AnonKey:        cfg.SupabaseAnonKey,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Timeout:        cfg.ProviderTimeout,
	}, &http.Client{}, log)

	socialClient := social.NewClient(social.Config{
		Apple: social.AppleConfig{
			ClientID:    cfg.AppleClientID,
			TeamID:      cfg.AppleTeamID,
			KeyID:       cfg.AppleKeyID,
			PrivateKey:  cfg.ApplePrivateKey,
			RedirectURI: cfg.AppleRedirectURI,
		},
		Google: social.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
		},
		Timeout: cfg.ProviderTimeout,
	}, security.NewSafeClient(cfg.ProviderTimeout), log)

	// 5. 認証オーケストレーター
	authService := auth.NewService(auth.Deps{
		Provider: idp,
		Tokens:   tokens,
		Sessions: sessions,
		Profiles: profileRepo,
		States:   states,
		Social:   socialClient,
		Metrics:  collector,
		Logger:   log,
	}, auth.Config{})

	// 6. ルーター
	limiter := middleware.NewRateLimiter(middleware.AuthRateLimiterConfig(cfg.RateLimitAuthPerMin))
	router := handler.NewRouter(&handler.RouterDeps{
		AccessVerifier:    tokens,
		TokenUserFetcher:  idp,
		RateLimiter:       limiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            log,

		AuthService:  authService,
		OAuthService: authService,

		SessionStore:   sessions,
		ProfileService: profileRepo,
		NameSanitizer:  security.NewNameSanitizer(),

		HealthChecker: db,
		Metrics:       collector,
		Gatherer:      registry,
	})

	return &server{
		handler:  router,
		cleanup:  cleanup.NewCleanupJob(sessions, states, collector, log),
		limiter:  limiter,
		sessions: sessions,
		states:   states,
		registry: registry,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. ワイヤリング
	srv, err := newServer(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer srv.limiter.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. クリーンアップジョブをバックグラウンドで起動
	go srv.cleanup.Start(ctx, cfg.CleanupInterval)

	// 4. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully",
		slog.Int("active_sessions", srv.sessions.Count()),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
