package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameLength は表示名の最大文字数（rune数）。
const MaxDisplayNameLength = 100

// NameSanitizer はユーザーが入力した表示名からHTMLを除去する。
// bluemondayのポリシーは並行利用できる。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はタグをすべて除去するポリシーでNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、空白を1つにまとめ、最大長で切り詰めた表示名を返す。
func (s *NameSanitizer) Sanitize(name string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(name))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if utf8.RuneCountInString(cleaned) > MaxDisplayNameLength {
		cleaned = string([]rune(cleaned)[:MaxDisplayNameLength])
	}
	return cleaned
}
