// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer は登録時にユーザーが入力した表示名をサニタイズし、
// 保存データへのHTML混入を防ぐ。
// bluemondayのStrictPolicyにより全てのタグが除去される。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は表示名サニタイズ機能のインターフェースを定義する。
type NameSanitizerService interface {
	// Sanitize は表示名から全てのHTMLタグを除去し、前後の空白を取り除いて返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名から全てのHTMLタグを除去する。
// bluemondayはエンティティをエスケープして返すため、
// プレーンテキストとして保存できるようアンエスケープする。
func (s *nameSanitizer) Sanitize(name string) string {
	cleaned := s.policy.Sanitize(name)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// compile-time interface check
var _ NameSanitizerService = (*nameSanitizer)(nil)
