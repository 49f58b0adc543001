package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/messenger/internal/model"
)

const messageColumns = `id, sender_id, receiver_id, content, status, read_at, created_at`

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func scanMessage(s rowScanner, extra ...any) (*model.Message, error) {
	m := &model.Message{}
	var status string
	var readAt sql.NullTime
	dest := append(extra, &m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &status, &readAt, &m.CreatedAt)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	m.Status = model.MessageStatus(status)
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return m, nil
}

// Create はメッセージを追記し、採番されたIDをmessage.IDに設定する。
func (r *PostgresMessageRepo) Create(ctx context.Context, message *model.Message) error {
	if !isValidID(message.SenderID, message.ReceiverID) {
		return ErrUnknownUser
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content, status, read_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		message.SenderID, message.ReceiverID, message.Content, string(message.Status),
		message.ReadAt, message.CreatedAt,
	).Scan(&message.ID)
	if isForeignKeyViolation(err) {
		return ErrUnknownUser
	}
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListBetween は2ユーザー間の全メッセージを時系列順で返す。
func (r *PostgresMessageRepo) ListBetween(ctx context.Context, userA, userB string) ([]*model.Message, error) {
	if !isValidID(userA, userB) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at ASC, id ASC`,
		userA, userB,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// FindLastBetween は2ユーザー間の最新メッセージを返す。存在しない場合はnilを返す。
func (r *PostgresMessageRepo) FindLastBetween(ctx context.Context, userA, userB string) (*model.Message, error) {
	if !isValidID(userA, userB) {
		return nil, nil
	}
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userA, userB,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last message: %w", err)
	}
	return m, nil
}

// MarkRead はsender→receiverの未読メッセージを一括で既読にする。
// 状態の後退を防ぐため、sent・deliveredの行のみを対象とする。
func (r *PostgresMessageRepo) MarkRead(ctx context.Context, senderID, receiverID string, atMost, readAt time.Time) (int64, error) {
	if !isValidID(senderID, receiverID) {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages
		 SET status = 'read', read_at = $4
		 WHERE sender_id = $1
		   AND receiver_id = $2
		   AND status IN ('sent', 'delivered')
		   AND created_at <= $3`,
		senderID, receiverID, atMost, readAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// CountUnread はfrom→toの未読メッセージ数を返す。
func (r *PostgresMessageRepo) CountUnread(ctx context.Context, fromID, toID string) (int, error) {
	if !isValidID(fromID, toID) {
		return 0, nil
	}
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*)
		 FROM messages
		 WHERE sender_id = $1 AND receiver_id = $2 AND status IN ('sent', 'delivered')`,
		fromID, toID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// ListSummaries は会話相手ごとの最新メッセージと未読数を返す。
// DISTINCT ONで相手ごとの最新行を選び、未読数はGROUP BYで集計して結合する。
func (r *PostgresMessageRepo) ListSummaries(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`WITH conv AS (
		     SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id,
		            `+messageColumns+`
		     FROM messages
		     WHERE sender_id = $1 OR receiver_id = $1
		 ),
		 latest AS (
		     SELECT DISTINCT ON (partner_id) partner_id, `+messageColumns+`
		     FROM conv
		     ORDER BY partner_id, created_at DESC, id DESC
		 ),
		 unread AS (
		     SELECT sender_id AS partner_id, count(*) AS unread_count
		     FROM messages
		     WHERE receiver_id = $1 AND status IN ('sent', 'delivered')
		     GROUP BY sender_id
		 )
		 SELECT COALESCE(u.unread_count, 0),
		        l.partner_id, l.id, l.sender_id, l.receiver_id, l.content, l.status, l.read_at, l.created_at
		 FROM latest l
		 LEFT JOIN unread u ON u.partner_id = l.partner_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		m, err := scanMessage(rows, &s.UnreadCount, &s.PartnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		s.LastMessage = *m
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}
	return summaries, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
