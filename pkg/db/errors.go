package db

import "strings"

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation. When constraintName is provided, the helper looks for that
// constraint's name in the error message so callers can tell which index fired.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
