package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"articlehub/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxIface is satisfied by *pgxpool.Pool and pgxmock pools.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// NewPostgresPool opens and pings a connection pool.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	} else {
		config.MaxConns = 10
	}
	config.MinConns = 1
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return pool, nil
}

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db            pgxIface
	caseSensitive bool
}

func NewPostgres(db pgxIface, opts Options) *Postgres {
	return &Postgres{db: db, caseSensitive: opts.CaseSensitiveSearch}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id           BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		category     VARCHAR(50)  NOT NULL,
		published_at TIMESTAMPTZ  NOT NULL,
		image_path   VARCHAR(255) NOT NULL,
		file_path    VARCHAR(255) NOT NULL,
		title        VARCHAR(255) NOT NULL,
		description  TEXT         NOT NULL,
		content      TEXT         NOT NULL DEFAULT '',
		views        BIGINT       NOT NULL DEFAULT 0 CHECK (views >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS articles_published_idx ON articles (published_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS articles_category_idx ON articles (category, published_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		username      VARCHAR(150) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL
	)`,
}

const (
	pgArticleColumns = `id, category, published_at, image_path, file_path, title, description, content, views`
	pgOrder          = ` ORDER BY published_at DESC, id DESC`

	pgInsertArticle = `INSERT INTO articles (category, published_at, image_path, file_path, title, description, content, views)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	pgSelectArticle     = `SELECT ` + pgArticleColumns + ` FROM articles WHERE id = $1`
	pgListArticles      = `SELECT ` + pgArticleColumns + ` FROM articles` + pgOrder
	pgListByCategory    = `SELECT ` + pgArticleColumns + ` FROM articles WHERE category = $1` + pgOrder
	pgRecentArticles    = `SELECT ` + pgArticleColumns + ` FROM articles` + pgOrder + ` LIMIT $1`
	pgSearchSensitive   = `SELECT ` + pgArticleColumns + ` FROM articles WHERE strpos(title, $1) > 0 OR strpos(content, $1) > 0` + pgOrder
	pgSearchInsensitive = `SELECT ` + pgArticleColumns + ` FROM articles WHERE strpos(lower(title), lower($1)) > 0 OR strpos(lower(content), lower($1)) > 0` + pgOrder
	pgSetViews          = `UPDATE articles SET views = $2 WHERE id = $1`
	pgCompareSetViews   = `UPDATE articles SET views = $3 WHERE id = $1 AND views = $2`
	pgIncrementViews    = `UPDATE articles SET views = views + 1 WHERE id = $1 RETURNING views`
	pgArticleExists     = `SELECT EXISTS (SELECT 1 FROM articles WHERE id = $1)`
	pgDeleteArticle     = `DELETE FROM articles WHERE id = $1`
	pgReferencedKeys    = `SELECT image_path, file_path FROM articles`

	pgCountUsers     = `SELECT COUNT(*) FROM users`
	pgBootstrapUser  = `INSERT INTO users (username, password_hash) SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM users) RETURNING id`
	pgUserByName     = `SELECT id, username, password_hash FROM users WHERE username = $1`
	pgUserByID       = `SELECT id, username, password_hash FROM users WHERE id = $1`
	pgUpdatePassword = `UPDATE users SET password_hash = $2 WHERE id = $1`
)

func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return types.StorageError("migrate", err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return types.StorageError("ping", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

func (p *Postgres) Create(ctx context.Context, a *types.Article) (int64, error) {
	if err := validateArticle(a); err != nil {
		return 0, err
	}

	var id int64
	err := p.db.QueryRow(ctx, pgInsertArticle,
		a.Category, a.Time.UTC(), a.ImagePath, a.FilePath, a.Title, a.Description, a.Content, a.Views,
	).Scan(&id)
	if err != nil {
		return 0, types.StorageError("insert article", err)
	}
	return id, nil
}

func (p *Postgres) GetByID(ctx context.Context, id int64) (*types.Article, error) {
	a, err := scanPgArticle(p.db.QueryRow(ctx, pgSelectArticle, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, articleNotFound(id)
	}
	if err != nil {
		return nil, types.StorageError("get article", err)
	}
	return &a, nil
}

func (p *Postgres) ListAll(ctx context.Context) ([]types.Article, error) {
	return p.queryArticles(ctx, "list articles", pgListArticles)
}

func (p *Postgres) ListByCategory(ctx context.Context, category string) ([]types.Article, error) {
	return p.queryArticles(ctx, "list articles by category", pgListByCategory, category)
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]types.Article, error) {
	if limit <= 0 {
		return []types.Article{}, nil
	}
	return p.queryArticles(ctx, "recent articles", pgRecentArticles, limit)
}

func (p *Postgres) Search(ctx context.Context, keyword string) ([]types.Article, error) {
	if err := checkKeyword(keyword); err != nil {
		return nil, err
	}
	query := pgSearchInsensitive
	if p.caseSensitive {
		query = pgSearchSensitive
	}
	return p.queryArticles(ctx, "search articles", query, keyword)
}

func (p *Postgres) SetViews(ctx context.Context, id, views int64) error {
	if err := checkViews(views); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, pgSetViews, id, views)
	if err != nil {
		return types.StorageError("set views", err)
	}
	if tag.RowsAffected() == 0 {
		return articleNotFound(id)
	}
	return nil
}

func (p *Postgres) CompareAndSetViews(ctx context.Context, id, expected, views int64) error {
	if err := checkViews(views); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, pgCompareSetViews, id, expected, views)
	if err != nil {
		return types.StorageError("set views", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := p.db.QueryRow(ctx, pgArticleExists, id).Scan(&exists); err != nil {
		return types.StorageError("set views", err)
	}
	if !exists {
		return articleNotFound(id)
	}
	return viewsConflict(id, expected)
}

func (p *Postgres) IncrementViews(ctx context.Context, id int64) (int64, error) {
	var views int64
	err := p.db.QueryRow(ctx, pgIncrementViews, id).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, articleNotFound(id)
	}
	if err != nil {
		return 0, types.StorageError("increment views", err)
	}
	return views, nil
}

func (p *Postgres) Delete(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx, pgDeleteArticle, id)
	if err != nil {
		return types.StorageError("delete article", err)
	}
	if tag.RowsAffected() == 0 {
		return articleNotFound(id)
	}
	return nil
}

func (p *Postgres) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.db.Query(ctx, pgReferencedKeys)
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

func (p *Postgres) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRow(ctx, pgCountUsers).Scan(&n); err != nil {
		return 0, types.StorageError("count users", err)
	}
	return n, nil
}

func (p *Postgres) BootstrapUser(ctx context.Context, username, passwordHash string) (int64, bool, error) {
	var id int64
	err := p.db.QueryRow(ctx, pgBootstrapUser, username, passwordHash).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, types.StorageError("bootstrap user", err)
	}
	return id, true, nil
}

func (p *Postgres) UserByName(ctx context.Context, username string) (*types.User, error) {
	return p.queryUser(ctx, pgUserByName, username)
}

func (p *Postgres) UserByID(ctx context.Context, id int64) (*types.User, error) {
	return p.queryUser(ctx, pgUserByID, id)
}

func (p *Postgres) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	tag, err := p.db.Exec(ctx, pgUpdatePassword, id, passwordHash)
	if err != nil {
		return types.StorageError("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func (p *Postgres) queryUser(ctx context.Context, query string, arg any) (*types.User, error) {
	var u types.User
	err := p.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, types.StorageError("get user", err)
	}
	return &u, nil
}

func (p *Postgres) queryArticles(ctx context.Context, op, query string, args ...any) ([]types.Article, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.StorageError(op, err)
	}
	defer rows.Close()

	articles := []types.Article{}
	for rows.Next() {
		a, err := scanPgArticle(rows)
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

func scanPgArticle(row pgx.Row) (types.Article, error) {
	var a types.Article
	err := row.Scan(&a.ID, &a.Category, &a.Time, &a.ImagePath, &a.FilePath, &a.Title, &a.Description, &a.Content, &a.Views)
	a.Time = a.Time.UTC()
	return a, err
}
