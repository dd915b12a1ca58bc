// Package query is the read side of the article store plus the view counter.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"articlehub/blobstore"
	"articlehub/events"
	"articlehub/metrics"
	"articlehub/repository"
	"articlehub/types"
)

// Download is a stored document ready to be served as an attachment.
type Download struct {
	Name string
	Data []byte
}

type Service struct {
	articles repository.ArticleRepository
	blobs    blobstore.Store
	events   events.Publisher
	log      *slog.Logger
}

func NewService(articles repository.ArticleRepository, blobs blobstore.Store, publisher events.Publisher, log *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{articles: articles, blobs: blobs, events: publisher, log: log}
}

// List returns every article, newest first.
func (s *Service) List(ctx context.Context) ([]types.ArticleView, error) {
	articles, err := s.articles.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewArticleViews(articles), nil
}

func (s *Service) ListByCategory(ctx context.Context, category string) ([]types.ArticleView, error) {
	articles, err := s.articles.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	return types.NewArticleViews(articles), nil
}

func (s *Service) Get(ctx context.Context, id int64) (types.ArticleView, error) {
	a, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return types.ArticleView{}, err
	}
	return types.NewArticleView(*a), nil
}

// Search matches keyword against title and content.
func (s *Service) Search(ctx context.Context, keyword string) ([]types.ArticleView, error) {
	articles, err := s.articles.Search(ctx, keyword)
	if err != nil {
		return nil, err
	}
	return types.NewArticleViews(articles), nil
}

// Recent returns at most limit raw articles for feed rendering.
func (s *Service) Recent(ctx context.Context, limit int) ([]types.Article, error) {
	return s.articles.Recent(ctx, limit)
}

// SetViews replaces the counter. With expected set the write only happens if
// the stored value still matches; otherwise the last writer wins.
func (s *Service) SetViews(ctx context.Context, id, views int64, expected *int64) error {
	var err error
	mode := "set"
	if expected != nil {
		mode = "cas"
		err = s.articles.CompareAndSetViews(ctx, id, *expected, views)
	} else {
		err = s.articles.SetViews(ctx, id, views)
	}
	if err != nil {
		return err
	}

	metrics.ViewUpdates.WithLabelValues(mode).Inc()
	s.publishViews(ctx, id, views)
	return nil
}

// IncrementViews adds one atomically and returns the new count.
func (s *Service) IncrementViews(ctx context.Context, id int64) (int64, error) {
	views, err := s.articles.IncrementViews(ctx, id)
	if err != nil {
		return 0, err
	}

	metrics.ViewUpdates.WithLabelValues("increment").Inc()
	s.publishViews(ctx, id, views)
	return views, nil
}

// Document returns the original upload of an article.
func (s *Service) Document(ctx context.Context, id int64) (Download, error) {
	a, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return Download{}, err
	}
	data, err := s.blobs.Get(ctx, a.FilePath)
	if err != nil {
		return Download{}, fmt.Errorf("document of article %d: %w", id, err)
	}
	return Download{Name: types.DownloadName(*a), Data: data}, nil
}

// Blob returns a stored file by key. Invalid keys are reported as not found.
func (s *Service) Blob(ctx context.Context, key string) ([]byte, error) {
	if err := blobstore.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("blob %q: %w", key, types.ErrNotFound)
	}
	return s.blobs.Get(ctx, key)
}

func (s *Service) publishViews(ctx context.Context, id, views int64) {
	e := events.Event{Type: events.ArticleViews, ArticleID: id, Views: &views}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "failed to publish event", "type", e.Type, "article_id", id, "error", err)
	}
}
