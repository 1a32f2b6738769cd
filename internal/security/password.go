// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidHash は保存されたハッシュが構造的に不正（bcrypt形式でない等）であることを示す。
// 照合の不一致とは区別される: 不一致は (false, nil) で表現する。
var ErrInvalidHash = errors.New("security: invalid password hash")

// HashPassword は平文パスワードをbcryptでハッシュ化する。
// ソルトは呼び出しごとにランダム生成されるため、
// 同じパスワードを2回ハッシュ化しても異なる出力になる。
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("security: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword は平文パスワードと保存されたハッシュを照合する。
// bcryptの定数時間比較を使用するため、タイミング攻撃に対して安全。
// 副作用はなく、不一致は (false, nil) を返す。
// ハッシュが構造的に不正な場合のみErrInvalidHashを返す。
func VerifyPassword(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	// 不一致以外のエラーはハッシュ自体の破損を示す
	return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
}
