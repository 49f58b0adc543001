package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/messenger/internal/model"
)

const sessionColumns = `id, user_id, expires_at, created_at`

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func scanSession(s rowScanner) (*model.Session, error) {
	sess := &model.Session{}
	if err := s.Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt,
	); err != nil {
		if isForeignKeyViolation(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FindByID は有効期限内のセッションのみを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	sess, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND expires_at > now()`,
		id,
	))
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return sess, nil
}

func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteExpired はexpires_atがnow以前のセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
}

func (r *PostgresSessionRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("session delete failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
