package feed

import (
	"bytes"
	"testing"
	"time"

	"articlehub/types"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderParsesAsRSS(t *testing.T) {
	articles := []types.Article{
		{
			ID: 2, Category: "tech", Title: "Second & <newer>", Description: "two",
			Time: time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), ImagePath: "images/b.jpg",
		},
		{
			ID: 1, Category: "news", Title: "First", Description: "one",
			Time: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), ImagePath: "images/a.png",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Options{Title: "Articles", Link: "https://example.com/", Description: "latest"}, articles))

	parsed, err := gofeed.NewParser().ParseString(buf.String())
	require.NoError(t, err)
	assert.Equal(t, "rss", parsed.FeedType)
	assert.Equal(t, "Articles", parsed.Title)
	require.Len(t, parsed.Items, 2)

	first := parsed.Items[0]
	assert.Equal(t, "Second & <newer>", first.Title)
	assert.Equal(t, "https://example.com/api/articles/2", first.Link)
	assert.Equal(t, "article-2", first.GUID)
	assert.Equal(t, []string{"tech"}, first.Categories)
	require.NotNil(t, first.PublishedParsed)
	assert.True(t, first.PublishedParsed.Equal(articles[0].Time))
	assert.Empty(t, first.Enclosures)
	assert.NotContains(t, buf.String(), `length="0"`)

	assert.Equal(t, "https://example.com/", parsed.Link)
	require.NotNil(t, parsed.UpdatedParsed)
	assert.True(t, parsed.UpdatedParsed.Equal(articles[0].Time))
	assert.Equal(t, []string{"news"}, parsed.Items[1].Categories)
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Options{Title: "Articles", Link: "http://localhost"}, nil))

	parsed, err := gofeed.NewParser().ParseString(buf.String())
	require.NoError(t, err)
	assert.Empty(t, parsed.Items)
}
