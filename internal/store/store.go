package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/trendpulse/pkg/source"
)

var (
	// ErrDuplicate is returned by InsertItem when the URL already exists.
	ErrDuplicate = errors.New("duplicate url")
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
)

// insertChunkSize bounds the rows per INSERT statement so large batches stay
// under driver bind-parameter limits.
const insertChunkSize = 100

// Item is a persisted item: the DTO plus storage-assigned fields.
type Item struct {
	ID int64 `db:"id" json:"id"`
	source.Item
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ListOpts controls item listing.
type ListOpts struct {
	Source source.SourceType
	Since  time.Time
	Limit  int
}

// Store is the persistence interface.
type Store interface {
	ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	InsertItems(ctx context.Context, items []source.Item) ([]int64, error)
	InsertItem(ctx context.Context, item source.Item) (int64, error)

	GetItem(ctx context.Context, id int64) (*Item, error)
	ListItems(ctx context.Context, opts ListOpts) ([]Item, error)
	SearchItems(ctx context.Context, query string, limit int) ([]Item, error)
	CountItemsBySource(ctx context.Context) (map[source.SourceType]int, error)

	Close() error
}

// SQLStore implements Store on SQLite or Postgres.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
}

// Open connects to the database for driver ("sqlite" or "postgres") and runs
// migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.driverName(), d.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if d.maxOpenConns() > 0 {
		db.SetMaxOpenConns(d.maxOpenConns())
	}

	if _, err := db.Exec(d.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, dialect: d}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

const itemColumns = "id, source, title, url, published_at, author, excerpt, score, comment_count, created_at, updated_at"

const bulkInsertSQL = `
	INSERT INTO items (source, title, url, published_at, author, excerpt, score, comment_count, created_at, updated_at)
	VALUES (:source, :title, :url, :published_at, :author, :excerpt, :score, :comment_count, :created_at, :updated_at)`

const insertItemSQL = bulkInsertSQL + `
	RETURNING id`

type insertRow struct {
	source.Item
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *SQLStore) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(urls) == 0 {
		return found, nil
	}

	query, args, err := sqlx.In("SELECT url FROM items WHERE url IN (?)", urls)
	if err != nil {
		return nil, fmt.Errorf("build existing urls query: %w", err)
	}

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("existing urls: %w", err)
	}
	for _, u := range rows {
		found[u] = struct{}{}
	}
	return found, nil
}

// InsertItems writes all items in one transaction. Any failure rolls the
// whole batch back. The returned ids are aligned with items; they are read back
// by url because multi-row RETURNING order is not guaranteed.
func (s *SQLStore) InsertItems(ctx context.Context, items []source.Item) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := make([]insertRow, len(items))
	for i, item := range items {
		rows[i] = insertRow{Item: item, CreatedAt: now, UpdatedAt: now}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	idByURL := make(map[string]int64, len(items))
	for start := 0; start < len(rows); start += insertChunkSize {
		chunk := rows[start:min(start+insertChunkSize, len(rows))]
		if _, err := tx.NamedExecContext(ctx, bulkInsertSQL, chunk); err != nil {
			if s.dialect.isUniqueViolation(err) {
				return nil, fmt.Errorf("insert items: %w: %v", ErrDuplicate, err)
			}
			return nil, fmt.Errorf("insert items: %w", err)
		}
		if err := insertedIDs(ctx, tx, chunk, idByURL); err != nil {
			return nil, fmt.Errorf("read inserted ids: %w", err)
		}
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		id, ok := idByURL[item.URL]
		if !ok {
			return nil, fmt.Errorf("read inserted ids: no row for %s", item.URL)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return ids, nil
}

func insertedIDs(ctx context.Context, tx *sqlx.Tx, rows []insertRow, into map[string]int64) error {
	urls := make([]string, len(rows))
	for i, r := range rows {
		urls[i] = r.URL
	}

	query, args, err := sqlx.In("SELECT id, url FROM items WHERE url IN (?)", urls)
	if err != nil {
		return err
	}

	var found []struct {
		ID  int64  `db:"id"`
		URL string `db:"url"`
	}
	if err := tx.SelectContext(ctx, &found, tx.Rebind(query), args...); err != nil {
		return err
	}
	for _, f := range found {
		into[f.URL] = f.ID
	}
	return nil
}

// InsertItem writes a single item and maps a unique-constraint violation on
// url to ErrDuplicate.
func (s *SQLStore) InsertItem(ctx context.Context, item source.Item) (int64, error) {
	now := time.Now().UTC()
	row := insertRow{Item: item, CreatedAt: now, UpdatedAt: now}

	query, args, err := s.db.BindNamed(insertItemSQL, row)
	if err != nil {
		return 0, fmt.Errorf("bind insert item: %w", err)
	}

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if s.dialect.isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert item %s: %w", item.URL, err)
	}
	return id, nil
}

func (s *SQLStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	var item Item
	err := s.db.GetContext(ctx, &item, s.db.Rebind("SELECT "+itemColumns+" FROM items WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return &item, nil
}

func (s *SQLStore) ListItems(ctx context.Context, opts ListOpts) ([]Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE 1=1"
	var args []any

	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	if !opts.Since.IsZero() {
		query += " AND published_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	query += " ORDER BY published_at DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(opts.Limit, 100))

	var items []Item
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// SearchItems queries the server-side full-text index.
func (s *SQLStore) SearchItems(ctx context.Context, query string, limit int) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var items []Item
	if err := s.db.SelectContext(ctx, &items, s.dialect.searchSQL(), s.dialect.searchArg(query), limitOrDefault(limit, 20)); err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	return items, nil
}

func (s *SQLStore) CountItemsBySource(ctx context.Context) (map[source.SourceType]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT source, COUNT(*) AS cnt FROM items GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count items by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[source.SourceType]int)
	for rows.Next() {
		var src string
		var cnt int
		if err := rows.Scan(&src, &cnt); err != nil {
			return nil, err
		}
		counts[source.SourceType(src)] = cnt
	}
	return counts, rows.Err()
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
