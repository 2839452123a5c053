package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. Postgres errors are matched on SQLSTATE 23505 (pgx or
// lib/pq) and SQLite errors on their message text. When names are given the
// violation must mention one of them: the index name on Postgres, or the
// "table.column" SQLite reports.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && matchesConstraint(pgxErr.ConstraintName, err.Error(), names)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && matchesConstraint(pqErr.Constraint, err.Error(), names)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return matchesConstraint("", msg, names)
}

func matchesConstraint(actual, msg string, names []string) bool {
	wanted := false
	for _, want := range names {
		if want == "" {
			continue
		}
		wanted = true
		if actual == want || strings.Contains(msg, want) {
			return true
		}
	}
	return !wanted
}
