// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultAvatarGlyph は未指定時に割り当てるアバター絵文字。
const DefaultAvatarGlyph = "😊"

// Theme はユーザーの表示テーマ設定を表す。
type Theme string

const (
	// ThemeLight はライトテーマ。
	ThemeLight Theme = "light"
	// ThemeDark はダークテーマ。
	ThemeDark Theme = "dark"
)

// IsValid はテーマが定義済みの値かどうかを返す。
func (t Theme) IsValid() bool {
	return t == ThemeLight || t == ThemeDark
}

// User はサービス利用ユーザーを表す。
// ニックネームは全ユーザーで一意。
type User struct {
	ID              string
	Nickname        string
	AvatarGlyph     string
	ThemePreference Theme
	PasswordHash    string
	IsOnline        bool
	LastSeenAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Profile はUserから公開可能な属性だけを取り出す。
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:          u.ID,
		DisplayName: u.Nickname,
		AvatarGlyph: u.AvatarGlyph,
		IsOnline:    u.IsOnline,
		LastSeenAt:  u.LastSeenAt,
	}
}

// UserProfile は他ユーザーに公開されるプロフィール情報。
// 会話エンジンはこの型を通してのみユーザー属性を参照する。
type UserProfile struct {
	ID          string
	DisplayName string
	AvatarGlyph string
	IsOnline    bool
	LastSeenAt  *time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
