package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"articlehub/blobstore"
	"articlehub/events"
	"articlehub/extractor"
	"articlehub/logger"
	"articlehub/repository"
	"articlehub/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArticles struct {
	repository.ArticleRepository
	mu        sync.Mutex
	rows      map[int64]types.Article
	nextID    int64
	createErr error
	deleteErr error
	onCreate  func()
}

func newFakeArticles() *fakeArticles {
	return &fakeArticles{rows: make(map[int64]types.Article)}
}

func (f *fakeArticles) Create(_ context.Context, a *types.Article) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCreate != nil {
		f.onCreate()
	}
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	row := *a
	row.ID = f.nextID
	f.rows[row.ID] = row
	return row.ID, nil
}

func (f *fakeArticles) GetByID(_ context.Context, id int64) (*types.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("article %d: %w", id, types.ErrNotFound)
	}
	return &a, nil
}

func (f *fakeArticles) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.rows[id]; !ok {
		return fmt.Errorf("article %d: %w", id, types.ErrNotFound)
	}
	delete(f.rows, id)
	return nil
}

// flakyBlobs wraps a real store and fails chosen operations.
type flakyBlobs struct {
	blobstore.Store
	failPutNS  blobstore.Namespace
	failDelete error
	deletes    []string
}

func (b *flakyBlobs) Put(ctx context.Context, ns blobstore.Namespace, name string, data []byte) (string, error) {
	if ns == b.failPutNS {
		return "", types.StorageError("put blob", errors.New("disk full"))
	}
	return b.Store.Put(ctx, ns, name, data)
}

func (b *flakyBlobs) Delete(ctx context.Context, key string) error {
	b.deletes = append(b.deletes, key)
	if b.failDelete != nil {
		return b.failDelete
	}
	return b.Store.Delete(ctx, key)
}

type extractorFunc func([]byte) (string, error)

func (f extractorFunc) Extract(data []byte) (string, error) { return f(data) }

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type harness struct {
	svc       *Service
	articles  *fakeArticles
	local     *blobstore.Local
	blobs     *flakyBlobs
	publisher *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	local := blobstore.NewLocal(t.TempDir())
	h := &harness{
		articles:  newFakeArticles(),
		local:     local,
		blobs:     &flakyBlobs{Store: local},
		publisher: &recordingPublisher{},
	}
	extract := extractorFunc(func(data []byte) (string, error) {
		if string(data) == "garbage" {
			return "", types.ErrUnsupportedFormat
		}
		return "text of " + string(data), nil
	})
	h.svc = NewService(h.articles, h.blobs, extract, h.publisher, logger.Discard())
	return h
}

func (h *harness) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	for _, ns := range blobstore.Namespaces {
		objects, err := h.local.List(context.Background(), ns)
		require.NoError(t, err)
		n += len(objects)
	}
	return n
}

func validSubmission() Submission {
	return Submission{
		Category:    "news",
		Time:        "2024-01-02 03:04:05",
		Title:       "Hello",
		Description: "first post",
		Image:       Upload{Name: "cover.png", Data: []byte("png")},
		Document:    Upload{Name: "post.docx", Data: []byte("doc")},
	}
}

func TestSubmitPersistsRowAndBlobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	assert.Positive(t, a.ID)
	assert.Equal(t, "text of doc", a.Content)
	assert.Equal(t, "2024-01-02 03:04:05", types.FormatTime(a.Time))
	assert.True(t, strings.HasPrefix(a.ImagePath, "images/"))
	assert.True(t, strings.HasPrefix(a.FilePath, "files/"))

	img, err := h.local.Get(ctx, a.ImagePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), img)
	doc, err := h.local.Get(ctx, a.FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), doc)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, events.ArticleCreated, h.publisher.events[0].Type)
	assert.Equal(t, a.ID, h.publisher.events[0].ArticleID)
}

func TestSubmitRejectsBeforeAnySideEffect(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Submission)
		want   error
	}{
		"missing sort":     {func(s *Submission) { s.Category = "" }, types.ErrValidation},
		"blank title":      {func(s *Submission) { s.Title = "  " }, types.ErrValidation},
		"long sort":        {func(s *Submission) { s.Category = strings.Repeat("x", 51) }, types.ErrValidation},
		"negative views":   {func(s *Submission) { s.Views = -1 }, types.ErrValidation},
		"missing image":    {func(s *Submission) { s.Image.Data = nil }, types.ErrValidation},
		"missing document": {func(s *Submission) { s.Document.Data = nil }, types.ErrValidation},
		"bad time":         {func(s *Submission) { s.Time = "2024/01/02" }, types.ErrInvalidTimestamp},
		"bad document":     {func(s *Submission) { s.Document.Data = []byte("garbage") }, types.ErrUnsupportedFormat},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			sub := validSubmission()
			tc.mutate(&sub)

			_, err := h.svc.Submit(context.Background(), sub)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, h.blobCount(t))
			assert.Empty(t, h.articles.rows)
			assert.Empty(t, h.publisher.events)
		})
	}
}

func TestSubmitDocumentFailureRemovesImage(t *testing.T) {
	h := newHarness(t)
	h.blobs.failPutNS = blobstore.Documents

	_, err := h.svc.Submit(context.Background(), validSubmission())
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.Zero(t, h.blobCount(t))
	require.Len(t, h.blobs.deletes, 1)
	assert.True(t, strings.HasPrefix(h.blobs.deletes[0], "images/"))
	assert.Empty(t, h.articles.rows)
}

func TestSubmitRowFailureRemovesBothBlobs(t *testing.T) {
	h := newHarness(t)
	h.articles.createErr = types.StorageError("insert article", errors.New("db down"))

	_, err := h.svc.Submit(context.Background(), validSubmission())
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.Zero(t, h.blobCount(t))
	assert.Len(t, h.blobs.deletes, 2)
	assert.Empty(t, h.publisher.events)
}

func TestSubmitCleanupSurvivesCanceledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client goes away while the row is being written.
	h.articles.onCreate = cancel
	h.articles.createErr = context.Canceled

	_, err := h.svc.Submit(ctx, validSubmission())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.blobCount(t))
}

func TestSubmitCleanupFailureDoesNotMaskCause(t *testing.T) {
	h := newHarness(t)
	h.articles.createErr = &types.ValidationError{Field: "title", Reason: "is required"}
	h.blobs.failDelete = types.StorageError("delete blob", errors.New("permission denied"))

	_, err := h.svc.Submit(context.Background(), validSubmission())
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.NotErrorIs(t, err, types.ErrStorage)
}

func TestSubmitPublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")

	a, err := h.svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Contains(t, h.articles.rows, a.ID)
}

func TestSubmitWithRealExtractorRejectsNonDocx(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.articles, h.blobs, extractor.Docx{}, nil, logger.Discard())

	_, err := svc.Submit(context.Background(), validSubmission())
	assert.ErrorIs(t, err, types.ErrUnsupportedFormat)
	assert.Zero(t, h.blobCount(t))
}

func TestDeleteCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, a.ID))
	assert.Empty(t, h.articles.rows)
	assert.Zero(t, h.blobCount(t))

	require.Len(t, h.publisher.events, 2)
	assert.Equal(t, events.ArticleDeleted, h.publisher.events[1].Type)

	assert.ErrorIs(t, h.svc.Delete(ctx, a.ID), types.ErrNotFound)
}

func TestDeleteToleratesMissingBlob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	require.NoError(t, h.local.Delete(ctx, a.ImagePath))

	require.NoError(t, h.svc.Delete(ctx, a.ID))
	assert.Zero(t, h.blobCount(t))
}

func TestDeleteSurfacesBlobFailureAfterRowIsGone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	h.blobs.failDelete = types.StorageError("delete blob", errors.New("io error"))

	err = h.svc.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.Empty(t, h.articles.rows)
}

func TestDeleteRowFailureKeepsBlobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	h.articles.deleteErr = types.StorageError("delete article", errors.New("db down"))

	assert.ErrorIs(t, h.svc.Delete(ctx, 1), types.ErrStorage)
	assert.Equal(t, 2, h.blobCount(t))
}
