package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"articlehub/ingestion"
	"articlehub/types"

	"github.com/gin-gonic/gin"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type articlesController struct {
	writer         ArticleWriter
	reader         ArticleReader
	log            *slog.Logger
	maxUploadBytes int64
}

// RegisterArticleRoutes registers article-related routes. guard protects the
// write endpoints.
func RegisterArticleRoutes(r *gin.Engine, ctl *articlesController, guard gin.HandlerFunc) {
	g := r.Group("/api/articles")
	g.POST("", guard, ctl.handleCreate)
	g.GET("", ctl.handleList)
	g.GET("/search", ctl.handleSearch)
	g.GET("/:key", ctl.handleGet)
	g.DELETE("/:key", guard, ctl.handleDelete)
	g.PUT("/:key/views", ctl.handleSetViews)
	g.POST("/:key/views/increment", ctl.handleIncrementViews)
	g.GET("/:key/file", ctl.handleDocument)
	g.GET("/:key/download", ctl.handleDocument)
}

// handleCreate accepts the multipart upload form.
func (ctl *articlesController) handleCreate(c *gin.Context) {
	if c.Request.ContentLength > ctl.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, ctl.maxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a multipart form: " + err.Error()})
		return
	}

	sub := ingestion.Submission{
		Category:    formValue(form, "sort"),
		Time:        formValue(form, "time"),
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
	}
	if raw := strings.TrimSpace(formValue(form, "views")); raw != "" {
		views, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(c, ctl.log, &types.ValidationError{Field: "views", Reason: "must be an integer"})
			return
		}
		sub.Views = views
	}
	if sub.Image, err = readUpload(form, "image"); err != nil {
		respondError(c, ctl.log, err)
		return
	}
	if sub.Document, err = readUpload(form, "file"); err != nil {
		respondError(c, ctl.log, err)
		return
	}

	a, err := ctl.writer.Submit(c.Request.Context(), sub)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Article uploaded successfully!", "id": a.ID})
}

func (ctl *articlesController) handleList(c *gin.Context) {
	views, err := ctl.reader.List(c.Request.Context())
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (ctl *articlesController) handleSearch(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a keyword"})
		return
	}
	views, err := ctl.reader.Search(c.Request.Context(), keyword)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// handleGet serves one article for a numeric key and a category listing otherwise.
func (ctl *articlesController) handleGet(c *gin.Context) {
	key := c.Param("key")
	if id, ok := parseID(key); ok {
		view, err := ctl.reader.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, ctl.log, err)
			return
		}
		c.JSON(http.StatusOK, view)
		return
	}

	views, err := ctl.reader.ListByCategory(c.Request.Context(), key)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (ctl *articlesController) handleDelete(c *gin.Context) {
	id, ok := ctl.idParam(c)
	if !ok {
		return
	}
	if err := ctl.writer.Delete(c.Request.Context(), id); err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Article deleted successfully!"})
}

type setViewsRequest struct {
	Views    *int64 `json:"views"`
	Expected *int64 `json:"expected"`
}

// handleSetViews replaces the counter, or compares and sets it when expected is given.
func (ctl *articlesController) handleSetViews(c *gin.Context) {
	id, ok := ctl.idParam(c)
	if !ok {
		return
	}
	var req setViewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload: " + err.Error()})
		return
	}
	if req.Views == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing views field in request data"})
		return
	}
	if err := ctl.reader.SetViews(c.Request.Context(), id, *req.Views, req.Expected); err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Views updated successfully!", "views": *req.Views})
}

func (ctl *articlesController) handleIncrementViews(c *gin.Context) {
	id, ok := ctl.idParam(c)
	if !ok {
		return
	}
	views, err := ctl.reader.IncrementViews(c.Request.Context(), id)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": views})
}

// handleDocument sends the original upload as an attachment named after the title.
func (ctl *articlesController) handleDocument(c *gin.Context) {
	id, ok := ctl.idParam(c)
	if !ok {
		return
	}
	doc, err := ctl.reader.Document(c.Request.Context(), id)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	c.Data(http.StatusOK, docxContentType, doc.Data)
}

// idParam parses :key as an article id. A non-numeric key cannot name an
// article, so it is answered with 404.
func (ctl *articlesController) idParam(c *gin.Context) (int64, bool) {
	key := c.Param("key")
	id, ok := parseID(key)
	if !ok {
		respondError(c, ctl.log, fmt.Errorf("article %q: %w", key, types.ErrNotFound))
		return 0, false
	}
	return id, true
}

func parseID(key string) (int64, bool) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formValue(form *multipart.Form, name string) string {
	if v := form.Value[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// readUpload reads the first file of a form field. A missing field yields an
// empty upload, which ingestion rejects.
func readUpload(form *multipart.Form, field string) (ingestion.Upload, error) {
	files := form.File[field]
	if len(files) == 0 {
		return ingestion.Upload{}, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return ingestion.Upload{}, fmt.Errorf("failed to open upload %q: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ingestion.Upload{}, fmt.Errorf("failed to read upload %q: %w", field, err)
	}
	return ingestion.Upload{Name: fh.Filename, Data: data}, nil
}
