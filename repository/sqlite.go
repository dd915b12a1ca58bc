package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"articlehub/types"

	"modernc.org/sqlite"
)

// SQLite's built-in lower() only folds ASCII; casefold lowers any Unicode
// letter so both backends match the same rows.
func init() {
	if err := sqlite.RegisterDeterministicScalarFunction("casefold", 1, casefold); err != nil {
		panic(err)
	}
}

func casefold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return nil, fmt.Errorf("casefold: unsupported argument type %T", v)
	}
}

// SQLite implements Store on an embedded database file. Timestamps are kept
// as unix seconds so ordering never depends on text collation.
type SQLite struct {
	db            *sql.DB
	caseSensitive bool
}

// OpenSQLite opens (creating if needed) the database at dsn.
func OpenSQLite(ctx context.Context, dsn string, opts Options) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer at a time; the pragmas below then stick to the only connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &SQLite{db: db, caseSensitive: opts.CaseSensitiveSearch}, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		category     TEXT    NOT NULL,
		published_at INTEGER NOT NULL,
		image_path   TEXT    NOT NULL,
		file_path    TEXT    NOT NULL,
		title        TEXT    NOT NULL,
		description  TEXT    NOT NULL,
		content      TEXT    NOT NULL DEFAULT '',
		views        INTEGER NOT NULL DEFAULT 0 CHECK (views >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS articles_published_idx ON articles (published_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS articles_category_idx ON articles (category, published_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	)`,
}

const (
	liteArticleColumns = `id, category, published_at, image_path, file_path, title, description, content, views`
	liteOrder          = ` ORDER BY published_at DESC, id DESC`

	liteInsertArticle = `INSERT INTO articles (category, published_at, image_path, file_path, title, description, content, views)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	liteSelectArticle     = `SELECT ` + liteArticleColumns + ` FROM articles WHERE id = ?`
	liteListArticles      = `SELECT ` + liteArticleColumns + ` FROM articles` + liteOrder
	liteListByCategory    = `SELECT ` + liteArticleColumns + ` FROM articles WHERE category = ?` + liteOrder
	liteRecentArticles    = `SELECT ` + liteArticleColumns + ` FROM articles` + liteOrder + ` LIMIT ?`
	liteSearchSensitive   = `SELECT ` + liteArticleColumns + ` FROM articles WHERE instr(title, ?1) > 0 OR instr(content, ?1) > 0` + liteOrder
	liteSearchInsensitive = `SELECT ` + liteArticleColumns + ` FROM articles WHERE instr(casefold(title), casefold(?1)) > 0 OR instr(casefold(content), casefold(?1)) > 0` + liteOrder
	liteSetViews          = `UPDATE articles SET views = ? WHERE id = ?`
	liteCompareSetViews   = `UPDATE articles SET views = ? WHERE id = ? AND views = ?`
	liteIncrementViews    = `UPDATE articles SET views = views + 1 WHERE id = ? RETURNING views`
	liteArticleExists     = `SELECT EXISTS (SELECT 1 FROM articles WHERE id = ?)`
	liteDeleteArticle     = `DELETE FROM articles WHERE id = ?`
	liteReferencedKeys    = `SELECT image_path, file_path FROM articles`

	liteCountUsers     = `SELECT COUNT(*) FROM users`
	liteBootstrapUser  = `INSERT INTO users (username, password_hash) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM users) RETURNING id`
	liteUserByName     = `SELECT id, username, password_hash FROM users WHERE username = ?`
	liteUserByID       = `SELECT id, username, password_hash FROM users WHERE id = ?`
	liteUpdatePassword = `UPDATE users SET password_hash = ? WHERE id = ?`
)

func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return types.StorageError("migrate", err)
		}
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return types.StorageError("ping", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, a *types.Article) (int64, error) {
	if err := validateArticle(a); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, liteInsertArticle,
		a.Category, a.Time.Unix(), a.ImagePath, a.FilePath, a.Title, a.Description, a.Content, a.Views,
	)
	if err != nil {
		return 0, types.StorageError("insert article", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, types.StorageError("insert article", err)
	}
	return id, nil
}

func (s *SQLite) GetByID(ctx context.Context, id int64) (*types.Article, error) {
	a, err := scanLiteArticle(s.db.QueryRowContext(ctx, liteSelectArticle, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, articleNotFound(id)
	}
	if err != nil {
		return nil, types.StorageError("get article", err)
	}
	return &a, nil
}

func (s *SQLite) ListAll(ctx context.Context) ([]types.Article, error) {
	return s.queryArticles(ctx, "list articles", liteListArticles)
}

func (s *SQLite) ListByCategory(ctx context.Context, category string) ([]types.Article, error) {
	return s.queryArticles(ctx, "list articles by category", liteListByCategory, category)
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]types.Article, error) {
	if limit <= 0 {
		return []types.Article{}, nil
	}
	return s.queryArticles(ctx, "recent articles", liteRecentArticles, limit)
}

func (s *SQLite) Search(ctx context.Context, keyword string) ([]types.Article, error) {
	if err := checkKeyword(keyword); err != nil {
		return nil, err
	}
	query := liteSearchInsensitive
	if s.caseSensitive {
		query = liteSearchSensitive
	}
	return s.queryArticles(ctx, "search articles", query, keyword)
}

func (s *SQLite) SetViews(ctx context.Context, id, views int64) error {
	if err := checkViews(views); err != nil {
		return err
	}
	n, err := s.exec(ctx, "set views", liteSetViews, views, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return articleNotFound(id)
	}
	return nil
}

func (s *SQLite) CompareAndSetViews(ctx context.Context, id, expected, views int64) error {
	if err := checkViews(views); err != nil {
		return err
	}
	n, err := s.exec(ctx, "set views", liteCompareSetViews, views, id, expected)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, liteArticleExists, id).Scan(&exists); err != nil {
		return types.StorageError("set views", err)
	}
	if !exists {
		return articleNotFound(id)
	}
	return viewsConflict(id, expected)
}

func (s *SQLite) IncrementViews(ctx context.Context, id int64) (int64, error) {
	var views int64
	err := s.db.QueryRowContext(ctx, liteIncrementViews, id).Scan(&views)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, articleNotFound(id)
	}
	if err != nil {
		return 0, types.StorageError("increment views", err)
	}
	return views, nil
}

func (s *SQLite) Delete(ctx context.Context, id int64) error {
	n, err := s.exec(ctx, "delete article", liteDeleteArticle, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return articleNotFound(id)
	}
	return nil
}

func (s *SQLite) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, liteReferencedKeys)
	if err != nil {
		return nil, types.StorageError("referenced keys", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var image, file string
		if err := rows.Scan(&image, &file); err != nil {
			return nil, types.StorageError("referenced keys", err)
		}
		keys[image] = struct{}{}
		keys[file] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.StorageError("referenced keys", err)
	}
	return keys, nil
}

func (s *SQLite) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, liteCountUsers).Scan(&n); err != nil {
		return 0, types.StorageError("count users", err)
	}
	return n, nil
}

func (s *SQLite) BootstrapUser(ctx context.Context, username, passwordHash string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, liteBootstrapUser, username, passwordHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, types.StorageError("bootstrap user", err)
	}
	return id, true, nil
}

func (s *SQLite) UserByName(ctx context.Context, username string) (*types.User, error) {
	return s.queryUser(ctx, liteUserByName, username)
}

func (s *SQLite) UserByID(ctx context.Context, id int64) (*types.User, error) {
	return s.queryUser(ctx, liteUserByID, id)
}

func (s *SQLite) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	n, err := s.exec(ctx, "update password", liteUpdatePassword, passwordHash, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *SQLite) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, types.StorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, types.StorageError(op, err)
	}
	return n, nil
}

func (s *SQLite) queryUser(ctx context.Context, query string, arg any) (*types.User, error) {
	var u types.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, types.StorageError("get user", err)
	}
	return &u, nil
}

func (s *SQLite) queryArticles(ctx context.Context, op, query string, args ...any) ([]types.Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.StorageError(op, err)
	}
	defer rows.Close()

	articles := []types.Article{}
	for rows.Next() {
		a, err := scanLiteArticle(rows)
		if err != nil {
			return nil, types.StorageError(op, err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.StorageError(op, err)
	}
	return articles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLiteArticle(row rowScanner) (types.Article, error) {
	var (
		a         types.Article
		published int64
	)
	err := row.Scan(&a.ID, &a.Category, &published, &a.ImagePath, &a.FilePath, &a.Title, &a.Description, &a.Content, &a.Views)
	a.Time = time.Unix(published, 0).UTC()
	return a, err
}
