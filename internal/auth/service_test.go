package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/security"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	existsByEmailFn      func(ctx context.Context, email string) (bool, error)
	createFn             func(ctx context.Context, user *model.User) error
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.existsByEmailFn != nil {
		return m.existsByEmailFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

func testTokenService() *TokenService {
	return NewTokenService("test-secret-key")
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return hash
}

// --- クレデンシャル認証 ---

func TestAuthenticate_MissingCredentials(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, &mockUserRepo{}, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"email欠落", "", "password123"},
		{"password欠落", "alice@example.com", ""},
		{"両方欠落", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.email, tt.password)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != "MISSING_CREDENTIALS" {
				t.Errorf("error code = %q, want %q", apiErr.Code, "MISSING_CREDENTIALS")
			}
		})
	}
}

func TestAuthenticate_UnknownEmail_ReturnsNoSuchUser(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(nil, userRepo, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.Authenticate(ctx, "nobody@example.com", "password123")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "NO_SUCH_USER" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "NO_SUCH_USER")
	}
}

func TestAuthenticate_OAuthOnlyUser_ReturnsNoSuchUser(t *testing.T) {
	ctx := context.Background()

	// OAuth経由で作成されたアカウントはパスワードハッシュを持たない。
	// 未登録メールと同じエラーを返し、アカウント種別を漏らさないこと。
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:    "oauth-user-1",
				Email: email,
				Name:  "OAuth User",
			}, nil
		},
	}
	svc := NewService(nil, userRepo, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.Authenticate(ctx, "oauth@example.com", "password123")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "NO_SUCH_USER" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "NO_SUCH_USER")
	}
}

func TestAuthenticate_WrongPassword_ReturnsIncorrectPassword(t *testing.T) {
	ctx := context.Background()

	hash := mustHash(t, "correct-password")
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}
	svc := NewService(nil, userRepo, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.Authenticate(ctx, "alice@example.com", "wrong-password")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "INCORRECT_PASSWORD" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "INCORRECT_PASSWORD")
	}
}

func TestAuthenticate_MalformedHash_ReturnsInvalidHash(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: "not-a-bcrypt-hash"}, nil
		},
	}
	svc := NewService(nil, userRepo, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.Authenticate(ctx, "alice@example.com", "password123")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "INVALID_HASH" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "INVALID_HASH")
	}
}

func TestAuthenticate_Success_StripsPasswordHash(t *testing.T) {
	ctx := context.Background()

	hash := mustHash(t, "password123")
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:           "user-1",
				Email:        email,
				Name:         "Alice",
				PasswordHash: hash,
			}, nil
		},
	}
	svc := NewService(nil, userRepo, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	user, err := svc.Authenticate(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", user.ID, "user-1")
	}
	if user.PasswordHash != "" {
		t.Error("expected password hash to be stripped from authenticated user")
	}
}

func TestAuthenticate_RepositoryError_IsNotAPIError(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("db error")
		},
	}
	svc := NewService(nil, userRepo, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.Authenticate(ctx, "alice@example.com", "password123")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("infrastructure error should not be an APIError, got %v", apiErr)
	}
}

// --- ログインとセッション発行 ---

func TestLogin_Success_IssuesVerifiableSession(t *testing.T) {
	ctx := context.Background()

	hash := mustHash(t, "alicepw99")
	var createdSession *model.Session

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "alice-id", Email: email, Name: "Alice", PasswordHash: hash}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}
	tokens := testTokenService()
	svc := NewService(nil, userRepo, nil, sessionRepo, tokens, ServiceConfig{SessionMaxAge: 10800})

	// 間違ったパスワードでは失敗する
	if _, err := svc.Login(ctx, "alice@example.com", "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}

	// 正しいパスワードでセッションが発行される
	issued, err := svc.Login(ctx, "alice@example.com", "alicepw99")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if issued.Token == "" {
		t.Fatal("expected non-empty session token")
	}
	if issued.User.PasswordHash != "" {
		t.Error("expected password hash to be stripped")
	}

	// セッション行が永続化されていること
	if createdSession == nil {
		t.Fatal("expected session to be persisted")
	}
	if createdSession.UserID != "alice-id" {
		t.Errorf("session userID = %q, want %q", createdSession.UserID, "alice-id")
	}

	// トークンが検証可能で、永続化されたセッション行を参照していること
	sessionID, userID, err := tokens.VerifySessionToken(issued.Token)
	if err != nil {
		t.Fatalf("VerifySessionToken() error = %v", err)
	}
	if sessionID != createdSession.ID {
		t.Errorf("token session ID = %q, want %q", sessionID, createdSession.ID)
	}
	if userID != "alice-id" {
		t.Errorf("token user ID = %q, want %q", userID, "alice-id")
	}
}

func TestIssueSession_ExpiryMatchesMaxAge(t *testing.T) {
	ctx := context.Background()

	maxAge := 10800 // 3時間
	var createdSession *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, testTokenService(), ServiceConfig{SessionMaxAge: maxAge})

	before := time.Now()
	issued, err := svc.IssueSession(ctx, &model.User{ID: "user-1", Email: "a@example.com"})
	after := time.Now()
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	wantMin := before.Add(time.Duration(maxAge) * time.Second)
	wantMax := after.Add(time.Duration(maxAge) * time.Second)
	if createdSession.ExpiresAt.Before(wantMin) || createdSession.ExpiresAt.After(wantMax) {
		t.Errorf("session expiry %v not within [%v, %v]", createdSession.ExpiresAt, wantMin, wantMax)
	}
	if !issued.Session.ExpiresAt.Equal(createdSession.ExpiresAt) {
		t.Error("issued session expiry should match persisted session expiry")
	}
}

func TestIssueSession_SessionRepoError_ReturnsError(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			return errors.New("db error")
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.IssueSession(ctx, &model.User{ID: "user-1"})
	if err == nil {
		t.Fatal("expected error when session persistence fails")
	}
}

// --- OAuth ---

func TestGetLoginURL_ReturnsOAuthURL(t *testing.T) {
	provider := &mockOAuthProvider{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	svc := NewService(provider, nil, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	url := svc.GetLoginURL("test-state")

	expected := "https://accounts.google.com/o/oauth2/auth?state=test-state"
	if url != expected {
		t.Errorf("GetLoginURL() = %q, want %q", url, expected)
	}
}

func TestHandleCallback_NewUser_CreatesUserAndIdentityAndSession(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	var createdIdentity *model.Identity
	var createdSession *model.Session

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "google-user-123",
				Email:          "test@example.com",
				Name:           "Test User",
				Provider:       "google",
			}, nil
		},
	}

	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser = user
			createdIdentity = identity
			return nil
		},
	}

	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			// ユーザーが見つからない（新規ユーザー）
			return nil, nil
		},
	}

	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService(provider, userRepo, identityRepo, sessionRepo, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	issued, err := svc.HandleCallback(ctx, "auth-code-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if issued.Token == "" {
		t.Error("expected non-empty session token")
	}

	// ユーザーが作成されること。パスワードハッシュは持たない。
	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Email != "test@example.com" {
		t.Errorf("user email = %q, want %q", createdUser.Email, "test@example.com")
	}
	if createdUser.HasPassword() {
		t.Error("OAuth-created user should not have a password hash")
	}

	// identityが作成されること
	if createdIdentity == nil {
		t.Fatal("expected identity to be created")
	}
	if createdIdentity.Provider != "google" {
		t.Errorf("identity provider = %q, want %q", createdIdentity.Provider, "google")
	}
	if createdIdentity.ProviderUserID != "google-user-123" {
		t.Errorf("identity providerUserID = %q, want %q", createdIdentity.ProviderUserID, "google-user-123")
	}

	// セッションが作成されること
	if createdSession == nil {
		t.Fatal("expected session to be created")
	}
	if createdSession.UserID != createdUser.ID {
		t.Errorf("session userID = %q, want %q", createdSession.UserID, createdUser.ID)
	}
	if createdSession.ExpiresAt.Before(time.Now()) {
		t.Error("session should not be expired")
	}
}

func TestHandleCallback_ExistingUser_LogsInAndCreatesSession(t *testing.T) {
	ctx := context.Background()

	existingUserID := "existing-user-id-456"
	var createdSession *model.Session

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "google-user-789",
				Email:          "existing@example.com",
				Name:           "Existing User",
				Provider:       "google",
			}, nil
		},
	}

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{
				ID:    existingUserID,
				Email: "existing@example.com",
				Name:  "Existing User",
			}, nil
		},
	}

	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			// 既存ユーザーのidentityが見つかる
			return &model.Identity{
				ID:             "identity-id-1",
				UserID:         existingUserID,
				Provider:       "google",
				ProviderUserID: "google-user-789",
			}, nil
		},
	}

	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService(provider, userRepo, identityRepo, sessionRepo, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	issued, err := svc.HandleCallback(ctx, "auth-code-existing")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if issued.User.ID != existingUserID {
		t.Errorf("issued user ID = %q, want %q", issued.User.ID, existingUserID)
	}

	// 既存ユーザーにCreateWithIdentityは呼ばれないこと
	// （mockUserRepoのcreateWithIdentityFnがnilなので、呼ばれても作成されない）

	// セッションが作成されること
	if createdSession == nil {
		t.Fatal("expected session to be created")
	}
	if createdSession.UserID != existingUserID {
		t.Errorf("session userID = %q, want %q", createdSession.UserID, existingUserID)
	}
}

func TestHandleCallback_OAuthError_ReturnsError(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return nil, errors.New("oauth exchange failed")
		},
	}

	svc := NewService(provider, nil, nil, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.HandleCallback(ctx, "bad-code")
	if err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

func TestHandleCallback_UserCreationError_ReturnsError(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "google-user-err",
				Email:          "error@example.com",
				Name:           "Error User",
				Provider:       "google",
			}, nil
		},
	}

	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return nil, nil // 新規ユーザー
		},
	}

	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			return errors.New("db error")
		},
	}

	svc := NewService(provider, userRepo, identityRepo, nil, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	_, err := svc.HandleCallback(ctx, "auth-code-err")
	if err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

// --- ログアウト ---

func TestLogout_ValidToken_DeletesSession(t *testing.T) {
	ctx := context.Background()

	tokens := testTokenService()
	session := &model.Session{
		ID:        "session-to-delete",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(1 * time.Hour),
		CreatedAt: time.Now(),
	}
	token, err := tokens.GenerateSessionToken(session, &model.User{ID: "user-1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("GenerateSessionToken() error = %v", err)
	}

	var deletedSessionID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedSessionID = id
			return nil
		},
	}

	svc := NewService(nil, nil, nil, sessionRepo, tokens, ServiceConfig{SessionMaxAge: 10800})

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if deletedSessionID != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deletedSessionID, "session-to-delete")
	}
}

func TestLogout_InvalidToken_IsIdempotent(t *testing.T) {
	ctx := context.Background()

	deleteCalled := false
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleteCalled = true
			return nil
		},
	}

	svc := NewService(nil, nil, nil, sessionRepo, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	// 不正なトークンでもログアウトは成功扱い
	if err := svc.Logout(ctx, "not-a-valid-token"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleteCalled {
		t.Error("delete should not be called for an invalid token")
	}

	// 空トークンも同様
	if err := svc.Logout(ctx, ""); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
}

func TestLogoutAll_DeletesAllUserSessions(t *testing.T) {
	ctx := context.Background()

	var deletedUserID string
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			deletedUserID = userID
			return nil
		},
	}

	svc := NewService(nil, nil, nil, sessionRepo, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	if err := svc.LogoutAll(ctx, "user-1"); err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}

	if deletedUserID != "user-1" {
		t.Errorf("deleted user ID = %q, want %q", deletedUserID, "user-1")
	}
}

func TestLogoutAll_RepositoryError_IsReturned(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db error")
		},
	}

	svc := NewService(nil, nil, nil, sessionRepo, testTokenService(), ServiceConfig{SessionMaxAge: 10800})

	if err := svc.LogoutAll(ctx, "user-1"); err == nil {
		t.Fatal("LogoutAll() should return error on repository failure")
	}
}
