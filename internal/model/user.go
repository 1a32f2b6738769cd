// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはクレデンシャル登録時のみ設定される。
// OAuth経由で作成されたアカウントでは空であり、
// その場合クレデンシャルログインは常に失敗する（OAuthでのみ認証可能）。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はクレデンシャルログイン可能なアカウントかどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// WithoutHash はパスワードハッシュを除いたコピーを返す。
// 認証フローの呼び出し元やAPIレスポンスにハッシュを渡さないために使用する。
func (u *User) WithoutHash() *User {
	clone := *u
	clone.PasswordHash = ""
	return &clone
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// IDはクライアントへ渡す署名付きトークンのjtiクレームとして埋め込まれる。
// 発行後はExpiresAtまで有効であり、サーバー側の失効手段はログアウトによる行削除のみ。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IssuedSession はセッション発行の結果を表す。
// Tokenはクライアントへcookieとして渡す署名付きJWT文字列。
// Userはパスワードハッシュを除いた発行対象ユーザー。
type IssuedSession struct {
	Token   string
	Session *Session
	User    *User
}
