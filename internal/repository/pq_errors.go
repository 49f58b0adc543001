package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATEコード
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// isUniqueViolation はerrが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

// isForeignKeyViolation はerrが外部キー制約違反かどうかを判定する。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqForeignKeyViolation
	}
	return false
}
