// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.IssuedSession, error)
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.IssuedSession, error)
	Logout(ctx context.Context, tokenString string) error
	LogoutAll(ctx context.Context, userID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
// クレデンシャルログインとOAuthフローの両方を処理する。
type AuthHandler struct {
	service AuthServiceInterface
	metrics authMetricsRecorder
	config  AuthHandlerConfig
}

// authMetricsRecorder は認証ハンドラーが記録するメトリクスの部分集合。
type authMetricsRecorder interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordSessionIssued()
	RecordLoginLatency(duration time.Duration)
}

// noopAuthMetrics はメトリクス未設定時のフォールバック。
type noopAuthMetrics struct{}

func (noopAuthMetrics) RecordLoginSuccess()              {}
func (noopAuthMetrics) RecordLoginFailure(string)        {}
func (noopAuthMetrics) RecordSessionIssued()             {}
func (noopAuthMetrics) RecordLoginLatency(time.Duration) {}

// NewAuthHandler はAuthHandlerを生成する。
// metricsがnilの場合は記録しない。
func NewAuthHandler(service AuthServiceInterface, metrics authMetricsRecorder, config AuthHandlerConfig) *AuthHandler {
	if metrics == nil {
		metrics = noopAuthMetrics{}
	}
	return &AuthHandler{
		service: service,
		metrics: metrics,
		config:  config,
	}
}

// loginRequest はクレデンシャルログインのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報のAPIレスポンス。
// パスワードハッシュは含まない。
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	}
}

// CredentialLogin はメールアドレスとパスワードでのログインを処理する。
// POST /api/login
// 成功時はHTTP OnlyのセッションCookieを設定し、ユーザー情報を返す。
func (h *AuthHandler) CredentialLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordLoginFailure(model.ErrCodeMissingCredentials)
		middleware.WriteAPIError(w, model.NewMissingCredentialsError())
		return
	}

	issued, err := h.service.Login(r.Context(), req.Email, req.Password)
	h.metrics.RecordLoginLatency(time.Since(start))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.metrics.RecordLoginFailure(apiErr.Code)
			middleware.WriteAPIError(w, apiErr)
			return
		}
		h.metrics.RecordLoginFailure("INTERNAL_ERROR")
		slog.Error("login failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.metrics.RecordLoginSuccess()
	h.metrics.RecordSessionIssued()
	h.setSessionCookie(w, issued.Token)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(issued.User))
}

// OAuthLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.GetLoginURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OAuthCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	issued, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		h.metrics.RecordLoginFailure("OAUTH_CALLBACK_FAILED")
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordLoginSuccess()
	h.metrics.RecordSessionIssued()

	// 4. クレデンシャルログインと同一のセッションCookieを設定
	h.setSessionCookie(w, issued.Token)

	// 5. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
// Cookieが無い・不正な場合も成功として扱う。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		// セッション行をDBから削除
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll はユーザーの全セッションを破棄する。
// POST /auth/logout/all
// セッションミドルウェアの内側に配置され、認証済みユーザーのみ実行できる。
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.LogoutAll(r.Context(), userID); err != nil {
		slog.Error("failed to logout all sessions",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	// 現在のセッションCookieもクリアする
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// setSessionCookie はHTTP OnlyのセッションCookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
