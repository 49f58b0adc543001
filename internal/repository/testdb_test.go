package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/messenger/internal/database"
	"github.com/hitoshi/messenger/internal/model"
)

// openTestDB はマイグレーション済みのテスト用DBを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はテストをスキップする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if _, err := database.RunMigrations(dbURL); err != nil {
		db.Close()
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE messages, contacts, sessions, users CASCADE`); err != nil {
		db.Close()
		t.Fatalf("クリーンアップに失敗: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser はテスト用ユーザーを作成する。
func createTestUser(t *testing.T, repo *PostgresUserRepo, nickname string) *model.User {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &model.User{
		ID:              uuid.New().String(),
		Nickname:        nickname,
		AvatarGlyph:     model.DefaultAvatarGlyph,
		ThemePreference: model.ThemeLight,
		PasswordHash:    "hash",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	return user
}
