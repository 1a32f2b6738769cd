package security

import "testing"

// Sanitizeのタグ除去と空白処理を検証
func TestNameSanitizer_Sanitize(t *testing.T) {
	s := NewNameSanitizer()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Alice", "Alice"},
		{"日本語名はそのまま", "山田 太郎", "山田 太郎"},
		{"scriptタグを除去", `Alice<script>alert("xss")</script>`, `Alice`},
		{"装飾タグを除去しテキストは保持", "<b>Alice</b>", "Alice"},
		{"imgタグを除去", `<img src="https://example.com/a.png">Alice`, "Alice"},
		{"前後の空白を除去", "  Alice  ", "Alice"},
		{"アンパサンドを保持", "Alice & Bob", "Alice & Bob"},
		{"空文字列は空文字列", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Sanitize(tc.input)
			if got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

// 同一入力に対して常に同一出力を返すことを検証（冪等性）
func TestNameSanitizer_Sanitize_Idempotent(t *testing.T) {
	s := NewNameSanitizer()
	input := `<b>Alice</b> & Bob`

	first := s.Sanitize(input)
	second := s.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize is not idempotent: first = %q, second = %q", first, second)
	}
}
