// Package account はユーザー登録に関するビジネスロジックを提供する。
package account

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

// 入力フィールドの最小文字数。クライアント側の検証と同じ値だが、
// サーバー側でも必ず検証する。
const minFieldLength = 2

// Service はアカウント登録を提供する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.NameSanitizerService
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.NameSanitizerService) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
	}
}

// Register は新規ユーザーを作成する。
// 登録成功してもセッションは発行しない。ログインは別途行う。
// メールアドレスの重複はストレージの一意性制約で検出するため、
// 同時登録でも重複レコードは作成されない。
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	if err := validateField("name", name); err != nil {
		return nil, err
	}
	if err := validateField("email", email); err != nil {
		return nil, err
	}
	if err := validateField("password", password); err != nil {
		return nil, err
	}

	// 表示名はHTMLとして解釈されないようサニタイズして保存する
	sanitized := s.sanitizer.Sanitize(name)
	if err := validateField("name", sanitized); err != nil {
		return nil, err
	}

	// 重複メールの早期検出。最終的な判定は一意性制約が行う。
	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, model.NewDuplicateEmailError()
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         sanitized,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 同時登録のレースはここの一意性制約違反としてDuplicateEmailになる
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)

	return user.WithoutHash(), nil
}

// validateField はフィールドの最小文字数を検証する。
func validateField(field, value string) error {
	if len([]rune(value)) < minFieldLength {
		return model.NewValidationFailureError(field, minFieldLength)
	}
	return nil
}
