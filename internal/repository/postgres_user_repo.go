package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/messenger/internal/model"
	"github.com/lib/pq"
)

const userColumns = `id, nickname, avatar_glyph, theme_preference, password_hash,
	is_online, last_seen_at, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var theme string
	var lastSeen sql.NullTime
	if err := s.Scan(
		&user.ID, &user.Nickname, &user.AvatarGlyph, &theme, &user.PasswordHash,
		&user.IsOnline, &lastSeen, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.ThemePreference = model.Theme(theme)
	if lastSeen.Valid {
		t := lastSeen.Time
		user.LastSeenAt = &t
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isValidID(id) {
		return nil, nil
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByIDs は指定ID群のユーザーをまとめて取得する。
func (r *PostgresUserRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find users by IDs: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// FindByNickname はニックネームでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByNickname(ctx context.Context, nickname string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE nickname = $1`,
		nickname,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by nickname: %w", err)
	}
	return user, nil
}

// ListExcept は指定ユーザー以外の全ユーザーをニックネーム順で返す。
func (r *PostgresUserRepo) ListExcept(ctx context.Context, userID string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY nickname ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, nickname, avatar_glyph, theme_preference, password_hash,
		                    is_online, last_seen_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Nickname, user.AvatarGlyph, string(user.ThemePreference), user.PasswordHash,
		user.IsOnline, user.LastSeenAt, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateNickname
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はニックネーム、アバター、テーマを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET nickname = $2, avatar_glyph = $3, theme_preference = $4, updated_at = $5
		 WHERE id = $1`,
		user.ID, user.Nickname, user.AvatarGlyph, string(user.ThemePreference), user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateNickname
	}
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// SetPresence はオンライン状態と最終アクセス時刻を更新する。
func (r *PostgresUserRepo) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_online = $2, last_seen_at = $3 WHERE id = $1`,
		id, online, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

// ResetStalePresence はlast_seen_atがstaleBeforeより古いオンラインユーザーをオフラインに戻す。
func (r *PostgresUserRepo) ResetStalePresence(ctx context.Context, staleBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_online = false
		 WHERE is_online AND (last_seen_at IS NULL OR last_seen_at < $1)`,
		staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale presence: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するsessions、contacts、messagesはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
