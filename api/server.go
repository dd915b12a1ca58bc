package api

import (
	"context"
	"log/slog"
	"time"

	"articlehub/auth"
	"articlehub/feed"
	"articlehub/ingestion"
	"articlehub/query"
	"articlehub/types"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ArticleWriter is the write side of the article store.
type ArticleWriter interface {
	Submit(ctx context.Context, sub ingestion.Submission) (*types.Article, error)
	Delete(ctx context.Context, id int64) error
}

// ArticleReader is the read side plus the view counter.
type ArticleReader interface {
	List(ctx context.Context) ([]types.ArticleView, error)
	ListByCategory(ctx context.Context, category string) ([]types.ArticleView, error)
	Get(ctx context.Context, id int64) (types.ArticleView, error)
	Search(ctx context.Context, keyword string) ([]types.ArticleView, error)
	Recent(ctx context.Context, limit int) ([]types.Article, error)
	SetViews(ctx context.Context, id, views int64, expected *int64) error
	IncrementViews(ctx context.Context, id int64) (int64, error)
	Document(ctx context.Context, id int64) (query.Download, error)
	Blob(ctx context.Context, key string) ([]byte, error)
}

// Authenticator is the credential gate.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (auth.Session, error)
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins        []string
	CookieSecure       bool
	MaxUploadBytes     int64
	LoginRatePerMinute int
	Feed               feed.Options
	FeedSize           int
}

// Deps are the services the router dispatches to.
type Deps struct {
	Writer  ArticleWriter
	Reader  ArticleReader
	Auth    Authenticator
	Health  Pinger
	Logger  *slog.Logger
	Options Options
}

const (
	defaultMaxUploadBytes = 32 << 20
	defaultLoginRate      = 10
	defaultFeedSize       = 20
)

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(d Deps) *gin.Engine {
	if d.Options.MaxUploadBytes <= 0 {
		d.Options.MaxUploadBytes = defaultMaxUploadBytes
	}
	if d.Options.LoginRatePerMinute <= 0 {
		d.Options.LoginRatePerMinute = defaultLoginRate
	}
	if d.Options.FeedSize <= 0 {
		d.Options.FeedSize = defaultFeedSize
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))
	if mw := corsMiddleware(d.Options.CORSOrigins); mw != nil {
		r.Use(mw)
	}

	guard := requireSession(d.Auth)
	RegisterArticleRoutes(r, &articlesController{
		writer:         d.Writer,
		reader:         d.Reader,
		log:            d.Logger,
		maxUploadBytes: d.Options.MaxUploadBytes,
	}, guard)
	RegisterAuthRoutes(r, &authController{
		auth:         d.Auth,
		log:          d.Logger,
		cookieSecure: d.Options.CookieSecure,
		limiter:      newRateLimiter(d.Options.LoginRatePerMinute),
	}, guard)
	RegisterContentRoutes(r, &contentController{
		reader:   d.Reader,
		log:      d.Logger,
		feed:     d.Options.Feed,
		feedSize: d.Options.FeedSize,
	})
	RegisterHealthRoutes(r, d.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// corsMiddleware allows credentialed requests from the configured origins.
// "*" reflects any origin; an empty list disables CORS handling.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}
