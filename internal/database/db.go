package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// 接続プールの設定。チャットのポーリングは短いクエリが多いため、アイドル接続を多めに保持する。
const (
	maxOpenConns    = 25
	maxIdleConns    = 10
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute

	pingTimeout = 5 * time.Second
)

// Open はPostgreSQLデータベース接続プールを開く。
// sql.Openは接続を試行しないため、実際の接続確認にはConnectまたはdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	return db, nil
}

// Connect は接続プールを開き、疎通を確認してから返す。
// 疎通に失敗した場合はプールを閉じてエラーを返す。
func Connect(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := Open(databaseURL)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
