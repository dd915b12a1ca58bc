package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"articlehub/auth"
	"articlehub/blobstore"
	"articlehub/common"
	"articlehub/config"
	"articlehub/events"
	"articlehub/repository"

	"github.com/redis/go-redis/v9"
)

// app holds the long-lived dependencies shared by the commands.
type app struct {
	store     repository.Store
	blobs     blobstore.Store
	publisher events.Publisher
	registry  auth.Registry
	closers   []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// openStore connects to the article database and migrates it when configured to.
func openStore(ctx context.Context, c *config.Config, log *slog.Logger) (repository.Store, error) {
	store, err := repository.Open(ctx, c.Database.URL, repository.Options{
		CaseSensitiveSearch: c.Database.CaseSensitiveSearch,
		MaxConns:            c.Database.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	if c.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		log.Debug("schema up to date")
	}
	return store, nil
}

func openBlobs(ctx context.Context, c config.BlobConfig, log *slog.Logger) (blobstore.Store, error) {
	switch c.Backend {
	case "s3":
		client, err := common.NewS3(ctx, common.S3Config{
			Region:       c.S3Region,
			Profile:      c.S3Profile,
			Endpoint:     c.S3Endpoint,
			UsePathStyle: c.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		log.Info("using S3 blob store", "bucket", c.S3Bucket, "prefix", c.S3Prefix)
		return blobstore.NewS3Store(client, c.S3Bucket, c.S3Prefix), nil
	default:
		log.Info("using local blob store", "dir", c.UploadDir)
		return blobstore.NewLocal(c.UploadDir), nil
	}
}

// openRegistry returns a Redis-backed session registry when REDIS_ADDR is set
// and a process-local one otherwise.
func openRegistry(ctx context.Context, c config.AuthConfig, log *slog.Logger) (auth.Registry, func() error, error) {
	if c.RedisAddr == "" {
		log.Info("using in-memory session registry")
		return auth.NewMemoryRegistry(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", c.RedisAddr, err)
	}
	log.Info("using redis session registry", "addr", c.RedisAddr)
	return auth.NewRedisRegistry(client, ""), client.Close, nil
}

func openPublisher(c config.KafkaConfig, log *slog.Logger) (events.Publisher, error) {
	if len(c.Brokers) == 0 {
		return events.Nop{}, nil
	}
	p, err := events.NewKafkaPublisher(c.Brokers, c.Topic, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	log.Info("publishing article events", "brokers", c.Brokers, "topic", c.Topic)
	return p, nil
}

// newApp opens everything the API needs. The caller must Close it.
func newApp(ctx context.Context, c *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.store, err = openStore(ctx, c, log); err != nil {
		return nil, err
	}
	a.onClose(a.store.Close)

	if a.blobs, err = openBlobs(ctx, c.Blob, log); err != nil {
		return nil, err
	}

	registry, closeRegistry, err := openRegistry(ctx, c.Auth, log)
	if err != nil {
		return nil, err
	}
	a.registry = registry
	a.onClose(closeRegistry)

	if a.publisher, err = openPublisher(c.Kafka, log); err != nil {
		return nil, err
	}
	a.onClose(a.publisher.Close)
	return a, nil
}
