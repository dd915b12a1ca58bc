package api

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"articlehub/feed"

	"github.com/gin-gonic/gin"
)

type contentController struct {
	reader   ArticleReader
	log      *slog.Logger
	feed     feed.Options
	feedSize int
}

// RegisterContentRoutes registers the stored-file and feed routes.
func RegisterContentRoutes(r *gin.Engine, ctl *contentController) {
	r.GET("/uploads/*filepath", ctl.handleUpload)
	r.GET("/feed.xml", ctl.handleFeed)
}

// handleUpload serves a blob by key. Keys that fail validation are reported as 404.
func (ctl *contentController) handleUpload(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("filepath"), "/")
	data, err := ctl.reader.Blob(c.Request.Context(), key)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Header("Cache-Control", "public, max-age=86400, immutable")
	c.Header("X-Content-Type-Options", "nosniff")
	if !inlineSafe(contentType) {
		c.Header("Content-Disposition", "attachment; filename="+path.Base(key))
	}
	c.Data(http.StatusOK, contentType, data)
}

// inlineSafe reports whether a stored file may render in the browser.
// SVG can carry script, so it is downloaded like any non-image type.
func inlineSafe(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

func (ctl *contentController) handleFeed(c *gin.Context) {
	articles, err := ctl.reader.Recent(c.Request.Context(), ctl.feedSize)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}

	opts := ctl.feed
	if opts.Link == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		opts.Link = scheme + "://" + c.Request.Host
	}

	var buf bytes.Buffer
	if err := feed.Render(&buf, opts, articles); err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", buf.Bytes())
}
