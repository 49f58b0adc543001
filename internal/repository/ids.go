package repository

import "github.com/google/uuid"

// isValidID はidがUUIDとして解釈できるかを返す。
// UUID列に不正な文字列を渡すとPostgreSQLが22P02を返すため、クエリ前に弾いて「存在しない」として扱う。
func isValidID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// validIDs はUUIDとして解釈できるIDだけを返す。
func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if isValidID(id) {
			out = append(out, id)
		}
	}
	return out
}
