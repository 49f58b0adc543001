package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/messenger/internal/model"
)

// PostgresContactRepo はPostgreSQLを使用した連絡先リポジトリ。
type PostgresContactRepo struct {
	db *sql.DB
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

// Insert は連絡先を挿入する。既に存在する場合はcreated=falseを返す。
// ownerまたはpeerが存在しない場合はErrUnknownUserを返す。
func (r *PostgresContactRepo) Insert(ctx context.Context, contact *model.Contact) (bool, error) {
	if !isValidID(contact.OwnerID, contact.PeerID) {
		return false, ErrUnknownUser
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO contacts (id, owner_id, peer_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (owner_id, peer_id) DO NOTHING`,
		contact.ID, contact.OwnerID, contact.PeerID, contact.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return false, ErrUnknownUser
	}
	if isUniqueViolation(err) {
		// 並行する追加がON CONFLICTの判定をすり抜けた場合も既存扱い
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert contact: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// FindByOwnerAndPeer は連絡先を取得する。見つからない場合はnilを返す。
func (r *PostgresContactRepo) FindByOwnerAndPeer(ctx context.Context, ownerID, peerID string) (*model.Contact, error) {
	if !isValidID(ownerID, peerID) {
		return nil, nil
	}
	contact := &model.Contact{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, peer_id, created_at
		 FROM contacts
		 WHERE owner_id = $1 AND peer_id = $2`,
		ownerID, peerID,
	).Scan(&contact.ID, &contact.OwnerID, &contact.PeerID, &contact.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return contact, nil
}

// ListByOwner はユーザーが登録した連絡先を登録順で返す。
func (r *PostgresContactRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, peer_id, created_at
		 FROM contacts
		 WHERE owner_id = $1
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*model.Contact
	for rows.Next() {
		c := &model.Contact{}
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.PeerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	return contacts, nil
}

// Delete は一方向の連絡先を削除する。逆方向の行には影響しない。
func (r *PostgresContactRepo) Delete(ctx context.Context, ownerID, peerID string) (bool, error) {
	if !isValidID(ownerID, peerID) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM contacts WHERE owner_id = $1 AND peer_id = $2`,
		ownerID, peerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete contact: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ ContactRepository = (*PostgresContactRepo)(nil)
