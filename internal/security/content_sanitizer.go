// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はAuthサービスから返されたエラー文言を
// フォームにそのまま表示できるプレーンテキストに正規化する。
// ユーザーが入力したメモ本文には使用しない（入力どおりに保存する）。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部由来の文言をプレーンテキスト化するインターフェース。
type TextSanitizer interface {
	// Sanitize はタグを除去し、連続する空白を1つにまとめた文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// 全てのタグを許可しないStrictPolicyを使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// プロキシのHTMLエラーページなどが文言に混入しても1行の文に収まる。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(cleaned), " ")
}
