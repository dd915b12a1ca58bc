package types

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wire format for article timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// UploadsPrefix is prepended to blob keys in API projections so clients can
// resolve them against the /uploads route.
const UploadsPrefix = "uploads/"

// Article is a persisted, ingested document and its metadata
type Article struct {
	ID          int64     `json:"id"`
	Category    string    `json:"sort" validate:"required,notblank,max=50"`
	Time        time.Time `json:"time"`
	ImagePath   string    `json:"image_path" validate:"required,max=255"`
	FilePath    string    `json:"file_path" validate:"required,max=255"`
	Title       string    `json:"title" validate:"required,notblank,max=255"`
	Description string    `json:"description" validate:"required,notblank"`
	Content     string    `json:"content"`
	Views       int64     `json:"views" validate:"gte=0"`
}

// ArticleView is the JSON projection returned by the read endpoints
type ArticleView struct {
	ID          int64  `json:"id"`
	Sort        string `json:"sort"`
	Time        string `json:"time"`
	ImagePath   string `json:"image_path"`
	FilePath    string `json:"file_path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Views       int64  `json:"views"`
}

// NewArticleView shapes an Article for the HTTP surface.
func NewArticleView(a Article) ArticleView {
	return ArticleView{
		ID:          a.ID,
		Sort:        a.Category,
		Time:        FormatTime(a.Time),
		ImagePath:   UploadsPrefix + a.ImagePath,
		FilePath:    UploadsPrefix + a.FilePath,
		Title:       a.Title,
		Description: a.Description,
		Content:     a.Content,
		Views:       a.Views,
	}
}

// NewArticleViews shapes a slice, never returning nil so empty results encode as [].
func NewArticleViews(articles []Article) []ArticleView {
	views := make([]ArticleView, 0, len(articles))
	for _, a := range articles {
		views = append(views, NewArticleView(a))
	}
	return views
}

// ParseTime parses a wire timestamp. Timestamps carry no zone and are read as UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match %s", ErrInvalidTimestamp, s, TimeLayout)
	}
	return t, nil
}

// FormatTime renders t in the wire layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// DownloadName is the attachment file name served for an article's document.
func DownloadName(a Article) string {
	return a.Title + ".docx"
}

// User is the single shared account guarding the write path.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}
