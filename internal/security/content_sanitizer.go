// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はbluemondayのStrictPolicyでHTMLマークアップを取り除いたテキストを返す。
// プロフィール項目の検証で、入力がマークアップを含むかの判定に使う。
// メッセージ本文には使用しない（本文は入力どおりに保存し、表示側でエスケープする）。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化の機能のインターフェースを定義する。
// ニックネームとアバターの検証時に使用される。
type TextSanitizer interface {
	// Clean は入力から全てのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// タグ以外の "<" や "&" などの文字はそのまま残す。
	// 空文字列の入力には空文字列を返す。
	Clean(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean は入力からHTMLタグを除去する。
func (s *textSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

var _ TextSanitizer = (*textSanitizer)(nil)
