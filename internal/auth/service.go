// Package auth はクレデンシャル認証、OAuth認証フロー、セッション発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/security"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// TokenProvider はセッショントークンの生成・検証インターフェース。
type TokenProvider interface {
	// GenerateSessionToken はセッションに対応する署名付きトークンを生成する。
	GenerateSessionToken(session *model.Session, user *model.User) (string, error)
	// VerifySessionToken はトークンを検証し、セッションIDとユーザーIDを返す。
	VerifySessionToken(tokenString string) (sessionID, userID string, err error)
}

// ServiceConfig は認証サービスの設定。
// 環境変数は起動時に読み込まれ、ここには値のみが渡される。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	tokens      TokenProvider
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	tokens TokenProvider,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		config:      config,
	}
}

// Authenticate はメールアドレスとパスワードでユーザーを認証する。
// 読み取り専用であり、失敗回数の記録やロックアウトは行わない。
// 成功時はパスワードハッシュを除いたユーザーを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	// 1. 両方の入力が必須
	if email == "" || password == "" {
		return nil, model.NewMissingCredentialsError()
	}

	// 2. メールアドレスの完全一致で検索
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	// レコードなし・パスワード未設定（OAuth専用アカウント）はどちらもNoSuchUser。
	// 応答からアカウントの存在と種別を区別できないようにする。
	if user == nil || !user.HasPassword() {
		return nil, model.NewNoSuchUserError()
	}

	// 3. bcryptの定数時間比較で照合
	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		// 照合不一致ではなく保存データの破損。ログには記録するが呼び出し元には詳細を渡さない。
		slog.Error("stored password hash is malformed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidHashError()
	}
	if !ok {
		return nil, model.NewIncorrectPasswordError()
	}

	return user.WithoutHash(), nil
}

// Login はクレデンシャル認証とセッション発行をまとめて実行する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.IssuedSession, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	issued, err := s.IssueSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	slog.Info("user logged in with credentials",
		slog.String("user_id", user.ID),
	)
	return issued, nil
}

// IssueSession は検証済みユーザーに対してセッションを発行する。
// セッション行を永続化し、jtiで行を参照する署名付きトークンを生成する。
// クレデンシャル認証とOAuth認証で同一の発行経路を使用する。
func (s *Service) IssueSession(ctx context.Context, user *model.User) (*model.IssuedSession, error) {
	now := time.Now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	token, err := s.tokens.GenerateSessionToken(session, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &model.IssuedSession{
		Token:   token,
		Session: session,
		User:    user.WithoutHash(),
	}, nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// OAuth経由で作成されたアカウントはパスワードハッシュを持たず、
// クレデンシャルログインはできない。
// 登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定しログインする。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.IssuedSession, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User

	if identity != nil {
		// 3a. 既存ユーザー: identityからユーザーを取得
		user, err = s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity references missing user: %s", identity.UserID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 3b. 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
		now := time.Now()
		user = &model.User{
			ID:        uuid.New().String(),
			Email:     userInfo.Email,
			Name:      userInfo.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         user.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, user, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("email", userInfo.Email),
			slog.String("provider", userInfo.Provider),
		)
	}

	// 4. クレデンシャル認証と同一の経路でセッションを発行
	issued, err := s.IssueSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	return issued, nil
}

// Logout はセッションを破棄する。
// トークンが不正・期限切れの場合もログアウト成功として扱う（冪等操作）。
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	sessionID, _, err := s.tokens.VerifySessionToken(tokenString)
	if err != nil {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// LogoutAll はユーザーの全セッションを破棄する。
// 全デバイスからのログアウトに使用する。
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	slog.Info("user logged out from all sessions", slog.String("user_id", userID))
	return nil
}
