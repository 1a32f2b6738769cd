package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionVerifier   middleware.SessionTokenVerifier
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 登録
	RegisterService RegisterServiceInterface

	// ユーザー
	UserFinder UserFinder

	// メトリクス。nilの場合は/metricsルートを公開しない。
	Metrics         metrics.AuthMetrics
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (CSRF) → (Session)
//
// 認証ルート（/auth/*, /api/login, /api/register）はセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	if deps.Metrics != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, deps.AuthConfig)
	registerHandler := NewRegisterHandler(deps.RegisterService, deps.Metrics)
	userHandler := NewUserHandler(deps.UserFinder)

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	// --- 運用エンドポイント ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証不要のルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// CSRFトークン取得
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

		// クレデンシャル認証
		r.Post("/api/login", authHandler.CredentialLogin)
		r.Post("/api/register", registerHandler.Register)

		// OAuthフロー。コールバックは外部IdPからのリダイレクトのためCSRF対象外だが、
		// stateパラメータで保護される。
		r.Post("/auth/logout", authHandler.Logout)
	})

	r.Get("/auth/google/login", authHandler.OAuthLogin)
	r.Get("/auth/google/callback", authHandler.OAuthCallback)

	// --- 認証が必要なルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier, deps.SessionFinder))

		r.Get("/api/me", userHandler.Me)

		// 全デバイスからのログアウト
		r.Post("/auth/logout/all", authHandler.LogoutAll)
	})

	return r
}
