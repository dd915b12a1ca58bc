// Package repository is the relational store for articles and the shared
// account. Two backends are provided: PostgreSQL through pgx and an embedded
// SQLite database for single-node deployments and tests.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"articlehub/types"

	"github.com/go-playground/validator/v10"
)

// ArticleRepository owns the lifetime of article rows.
type ArticleRepository interface {
	Create(ctx context.Context, a *types.Article) (int64, error)
	GetByID(ctx context.Context, id int64) (*types.Article, error)
	// ListAll, ListByCategory, Search and Recent order by time descending, then id descending.
	ListAll(ctx context.Context) ([]types.Article, error)
	ListByCategory(ctx context.Context, category string) ([]types.Article, error)
	Search(ctx context.Context, keyword string) ([]types.Article, error)
	Recent(ctx context.Context, limit int) ([]types.Article, error)
	// SetViews replaces the counter; concurrent callers race and the last write wins.
	SetViews(ctx context.Context, id, views int64) error
	// CompareAndSetViews replaces the counter only if it still equals expected.
	CompareAndSetViews(ctx context.Context, id, expected, views int64) error
	// IncrementViews atomically adds one and returns the new value.
	IncrementViews(ctx context.Context, id int64) (int64, error)
	Delete(ctx context.Context, id int64) error
	// ReferencedKeys returns every blob key some row points at.
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)
}

// UserRepository stores the shared account.
type UserRepository interface {
	CountUsers(ctx context.Context) (int64, error)
	// BootstrapUser inserts the account only while no account exists.
	// created is false when another account was already present.
	BootstrapUser(ctx context.Context, username, passwordHash string) (id int64, created bool, err error)
	UserByName(ctx context.Context, username string) (*types.User, error)
	UserByID(ctx context.Context, id int64) (*types.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
}

// Store is a complete backend.
type Store interface {
	ArticleRepository
	UserRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Options tunes either backend.
type Options struct {
	CaseSensitiveSearch bool
	MaxConns            int
}

// Open picks a backend from the database URL scheme:
// postgres:// or postgresql:// for PostgreSQL, sqlite:// or file: for SQLite.
func Open(ctx context.Context, databaseURL string, opts Options) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		pool, err := NewPostgresPool(ctx, databaseURL, opts.MaxConns)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool, opts), nil
	case strings.HasPrefix(databaseURL, "sqlite://"), strings.HasPrefix(databaseURL, "file:"):
		db, err := OpenSQLite(ctx, strings.TrimPrefix(databaseURL, "sqlite://"), opts)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: unsupported database url scheme in %q", types.ErrInvalidArgument, redact(databaseURL))
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validateArticle enforces the required-field rules before any write.
func validateArticle(a *types.Article) error {
	if a == nil {
		return &types.ValidationError{Field: "article", Reason: "is required"}
	}
	if err := validate.Struct(a); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &types.ValidationError{Field: fe.Field(), Reason: reason(fe)}
		}
		return err
	}
	if a.Time.IsZero() {
		return &types.ValidationError{Field: "time", Reason: "is required"}
	}
	return nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}

func checkKeyword(keyword string) error {
	if keyword == "" {
		return fmt.Errorf("%w: keyword is required", types.ErrInvalidArgument)
	}
	return nil
}

func checkViews(views int64) error {
	if views < 0 {
		return &types.ValidationError{Field: "views", Reason: "must be at least 0"}
	}
	return nil
}

func articleNotFound(id int64) error {
	return fmt.Errorf("article %d: %w", id, types.ErrNotFound)
}

func viewsConflict(id, expected int64) error {
	return fmt.Errorf("article %d views no longer %d: %w", id, expected, types.ErrConflict)
}

// redact hides credentials in a database URL before it reaches an error message.
func redact(databaseURL string) string {
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return databaseURL
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}
