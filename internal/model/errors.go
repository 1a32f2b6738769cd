// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingCredentials = "MISSING_CREDENTIALS"
	ErrCodeNoSuchUser         = "NO_SUCH_USER"
	ErrCodeIncorrectPassword  = "INCORRECT_PASSWORD"
	ErrCodeInvalidHash        = "INVALID_HASH"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeValidationFailure  = "VALIDATION_FAILURE"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewMissingCredentialsError はメールアドレスまたはパスワードが未入力の場合のエラーを生成する。
func NewMissingCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCredentials,
		Message:  "メールアドレスとパスワードを入力してください。",
		Category: "validation",
		Action:   "両方のフィールドを入力して再度お試しください。",
	}
}

// NewNoSuchUserError はユーザーが見つからない場合のエラーを生成する。
// 「レコードが存在しない」と「パスワード未設定（OAuth専用）」を意図的に区別しない。
// アカウントの存在や種別を応答から推測されないようにするため。
func NewNoSuchUserError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSuchUser,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "メールアドレスを確認するか、アカウントを新規登録してください。",
	}
}

// NewIncorrectPasswordError はパスワード不一致エラーを生成する。
func NewIncorrectPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeIncorrectPassword,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "パスワードを確認して再度お試しください。",
	}
}

// NewInvalidHashError は保存されたパスワードハッシュが構造的に不正な場合のエラーを生成する。
// 照合の不一致ではなくデータ破損を示すため、認証失敗とは区別する。
func NewInvalidHashError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHash,
		Message:  "アカウント情報の検証に失敗しました。",
		Category: "system",
		Action:   "時間をおいて再度お試しください。解決しない場合は管理者に連絡してください。",
	}
}

// NewDuplicateEmailError はメールアドレスが登録済みの場合のエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewValidationFailureError はフィールドの形式チェック失敗エラーを生成する。
func NewValidationFailureError(field string, minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailure,
		Message:  fmt.Sprintf("%s は%d文字以上で入力してください。", field, minLength),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUserNotFoundError はセッションに対応するユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
