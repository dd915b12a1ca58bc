// Package ingestion turns an uploaded document and image into a persisted
// article, and removes articles together with the files they reference.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"articlehub/blobstore"
	"articlehub/events"
	"articlehub/metrics"
	"articlehub/repository"
	"articlehub/types"
)

// Extractor pulls plain text out of a document.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// Upload is one submitted file.
type Upload struct {
	Name string
	Data []byte
}

// Submission is everything a client sends to create an article.
type Submission struct {
	Category    string
	Time        string
	Title       string
	Description string
	Views       int64
	Image       Upload
	Document    Upload
}

// Service owns article creation and deletion.
type Service struct {
	articles  repository.ArticleRepository
	blobs     blobstore.Store
	extractor Extractor
	events    events.Publisher
	log       *slog.Logger
}

func NewService(articles repository.ArticleRepository, blobs blobstore.Store, extractor Extractor, publisher events.Publisher, log *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		articles:  articles,
		blobs:     blobs,
		extractor: extractor,
		events:    publisher,
		log:       log,
	}
}

// Submit stores both files and the row, or nothing. Everything that can be
// rejected without side effects is checked before the first blob write.
func (s *Service) Submit(ctx context.Context, sub Submission) (*types.Article, error) {
	started := time.Now()
	a, err := s.submit(ctx, sub)
	metrics.RecordIngest(err, started)
	return a, err
}

func (s *Service) submit(ctx context.Context, sub Submission) (*types.Article, error) {
	if err := validate(sub); err != nil {
		return nil, err
	}
	published, err := types.ParseTime(sub.Time)
	if err != nil {
		return nil, err
	}
	content, err := s.extractor.Extract(sub.Document.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %q: %w", sub.Document.Name, err)
	}

	imageKey, err := s.blobs.Put(ctx, blobstore.Images, sub.Image.Name, sub.Image.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}
	fileKey, err := s.blobs.Put(ctx, blobstore.Documents, sub.Document.Name, sub.Document.Data)
	if err != nil {
		s.cleanup(ctx, imageKey)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	a := &types.Article{
		Category:    sub.Category,
		Time:        published,
		ImagePath:   imageKey,
		FilePath:    fileKey,
		Title:       sub.Title,
		Description: sub.Description,
		Content:     content,
		Views:       sub.Views,
	}
	id, err := s.articles.Create(ctx, a)
	if err != nil {
		s.cleanup(ctx, imageKey, fileKey)
		return nil, fmt.Errorf("failed to save article: %w", err)
	}
	a.ID = id

	s.log.InfoContext(ctx, "article created", "id", id, "sort", a.Category, "image", imageKey, "file", fileKey)
	s.publish(ctx, events.Event{Type: events.ArticleCreated, ArticleID: id, Category: a.Category, Title: a.Title})
	return a, nil
}

// Delete removes the row first so no reader can observe a row whose files are
// gone, then removes both files. A file that is already missing counts as removed.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.delete(ctx, id)
	metrics.RecordDelete(err)
	return err
}

func (s *Service) delete(ctx context.Context, id int64) error {
	a, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.articles.Delete(ctx, id); err != nil {
		return err
	}

	var errs []error
	for _, key := range []string{a.ImagePath, a.FilePath} {
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, types.ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	s.log.InfoContext(ctx, "article deleted", "id", id)
	s.publish(ctx, events.Event{Type: events.ArticleDeleted, ArticleID: id, Category: a.Category, Title: a.Title})

	if len(errs) > 0 {
		return types.StorageError(fmt.Sprintf("article %d deleted but its files were not", id), errors.Join(errs...))
	}
	return nil
}

// cleanup is best effort and outlives request cancellation; leftovers are
// reclaimed by the sweeper.
func (s *Service) cleanup(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		err := s.blobs.Delete(ctx, key)
		if err == nil || errors.Is(err, types.ErrNotFound) {
			continue
		}
		metrics.CleanupFailures.Inc()
		s.log.WarnContext(ctx, "failed to remove blob after aborted submission", "key", key, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "failed to publish event", "type", e.Type, "article_id", e.ArticleID, "error", err)
	}
}

type fieldRule struct {
	name   string
	value  string
	maxLen int
}

func validate(sub Submission) error {
	for _, f := range []fieldRule{
		{"sort", sub.Category, 50},
		{"time", sub.Time, 0},
		{"title", sub.Title, 255},
		{"description", sub.Description, 0},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &types.ValidationError{Field: f.name, Reason: "is required"}
		}
		if f.maxLen > 0 && utf8.RuneCountInString(f.value) > f.maxLen {
			return &types.ValidationError{Field: f.name, Reason: fmt.Sprintf("must be at most %d characters", f.maxLen)}
		}
	}
	if sub.Views < 0 {
		return &types.ValidationError{Field: "views", Reason: "must be at least 0"}
	}
	if len(sub.Image.Data) == 0 {
		return &types.ValidationError{Field: "image", Reason: "is required"}
	}
	if len(sub.Document.Data) == 0 {
		return &types.ValidationError{Field: "file", Reason: "is required"}
	}
	return nil
}
