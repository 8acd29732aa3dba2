package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect holds what differs between the supported backends.
type dialect interface {
	driverName() string
	dsn(raw string) string
	maxOpenConns() int
	schema() string
	searchSQL() string
	searchArg(query string) string
	isUniqueViolation(err error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return sqliteDialect{}, nil
	case "postgres", "postgresql":
		return postgresDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver: %s", driver)
}

type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) dsn(raw string) string {
	if strings.Contains(raw, "?") {
		return raw
	}
	return raw + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// A single connection serializes writers and keeps :memory: databases shared.
func (sqliteDialect) maxOpenConns() int { return 1 }

func (sqliteDialect) schema() string { return sqliteSchema }

func (sqliteDialect) searchSQL() string {
	return `SELECT ` + prefixed("items", itemColumns) + `
		FROM items_fts JOIN items ON items.id = items_fts.rowid
		WHERE items_fts MATCH ?
		ORDER BY bm25(items_fts), items.published_at DESC
		LIMIT ?`
}

// searchArg quotes every term so user input cannot trip FTS5 query syntax.
func (sqliteDialect) searchArg(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

func (sqliteDialect) isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), "UNIQUE"))
}

type postgresDialect struct{}

func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) dsn(raw string) string { return raw }

func (postgresDialect) maxOpenConns() int { return 0 }

func (postgresDialect) schema() string { return postgresSchema }

func (postgresDialect) searchSQL() string {
	return `SELECT ` + itemColumns + `
		FROM items
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, published_at DESC
		LIMIT $2`
}

func (postgresDialect) searchArg(query string) string { return query }

func (postgresDialect) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func prefixed(table, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = table + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
