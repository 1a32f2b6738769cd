package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authgate/internal/model"
)

// SessionClaims はセッショントークン（JWT）のペイロード。
// subにユーザーID、jtiにセッション行のIDを埋め込む。
// クライアントはトークンの中身を解釈せず、サーバーがjtiでセッション行を参照する。
type SessionClaims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// TokenService はHS256署名付きセッショントークンの生成と検証を行う。
// 署名鍵は起動時に設定から渡され、プロセス中は変更されない。
type TokenService struct {
	secret []byte
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// GenerateSessionToken はセッションに対応する署名付きトークンを生成する。
// 有効期限はセッション行のExpiresAtと一致させる。
func (s *TokenService) GenerateSessionToken(session *model.Session, user *model.User) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Email: user.Email,
		Name:  user.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// VerifySessionToken はトークンの署名と有効期限を検証し、
// セッションIDとユーザーIDを返す。
// 署名不一致・期限切れ・形式不正はすべてエラーとなる。
func (s *TokenService) VerifySessionToken(tokenString string) (sessionID, userID string, err error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse session token: %w", err)
	}
	if !token.Valid {
		return "", "", errors.New("invalid session token")
	}
	if claims.ID == "" || claims.Subject == "" {
		return "", "", errors.New("session token missing jti or sub claim")
	}
	return claims.ID, claims.Subject, nil
}
