package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"articlehub/api"
	"articlehub/auth"
	"articlehub/config"
	"articlehub/extractor"
	"articlehub/feed"
	"articlehub/ingestion"
	"articlehub/query"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newHandler assembles the services behind the router.
func newHandler(a *app, c *config.Config, log *slog.Logger) http.Handler {
	sessions := auth.NewSessionManager(auth.SessionConfig{
		Secret: []byte(c.Auth.SecretKey),
		TTL:    c.Auth.SessionTTL,
	}, a.registry)

	return api.NewRouter(api.Deps{
		Writer: ingestion.NewService(a.store, a.blobs, extractor.Docx{}, a.publisher, log),
		Reader: query.NewService(a.store, a.blobs, a.publisher, log),
		Auth:   auth.NewService(a.store, sessions, 0, log),
		Health: a.store,
		Logger: log,
		Options: api.Options{
			CORSOrigins:        c.Server.CORSOrigins,
			CookieSecure:       c.Server.CookieSecure,
			MaxUploadBytes:     c.Server.MaxUploadBytes,
			LoginRatePerMinute: c.Server.LoginRatePerMinute,
			Feed: feed.Options{
				Title:       c.Server.FeedTitle,
				Link:        c.Server.FeedLink,
				Description: "Recently published articles",
			},
		},
	})
}

func serve(ctx context.Context, c *config.Config, log *slog.Logger) error {
	if c.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, c, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to release resources", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              c.Addr(),
		Handler:           newHandler(a, c, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting API server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
