package user

import (
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/security"
)

const (
	// MaxNicknameLength はニックネームの上限文字数。
	MaxNicknameLength = 50
	// MaxAvatarLength はアバター絵文字の上限文字数（結合文字を含むため複数文字を許容する）。
	MaxAvatarLength = 8
)

// plainField は前後の空白を除去した値と、それがマークアップを含まないかを返す。
// サニタイズで値が変わる入力は書き換えずに拒否する。
func plainField(sanitizer security.TextSanitizer, raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	return v, sanitizer.Clean(v) == v
}

// CleanNickname はニックネームの前後の空白を除去し、マークアップと長さを検証する。
func CleanNickname(sanitizer security.TextSanitizer, raw string) (string, error) {
	nickname, ok := plainField(sanitizer, raw)
	if nickname == "" {
		return "", model.NewValidationError("ニックネームを入力してください")
	}
	if !ok {
		return "", model.NewValidationError("ニックネームにHTMLタグは使用できません")
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return "", model.NewValidationError("ニックネームが長すぎます")
	}
	return nickname, nil
}

// CleanAvatar はアバター絵文字を検証する。空の場合は既定のアバターを返す。
func CleanAvatar(sanitizer security.TextSanitizer, raw string) (string, error) {
	avatar, ok := plainField(sanitizer, raw)
	if avatar == "" {
		return model.DefaultAvatarGlyph, nil
	}
	if !ok {
		return "", model.NewValidationError("アバターにHTMLタグは使用できません")
	}
	if utf8.RuneCountInString(avatar) > MaxAvatarLength {
		return "", model.NewValidationError("アバターが長すぎます")
	}
	return avatar, nil
}
