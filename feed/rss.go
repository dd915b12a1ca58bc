// Package feed renders recent articles as an RSS 2.0 document.
package feed

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"articlehub/types"

	"github.com/gorilla/feeds"
)

// Options describes the channel.
type Options struct {
	Title       string
	Link        string
	Description string
}

// Render writes the channel with one item per article, in the given order.
// Images are not attached as enclosures since their byte length is not
// tracked on the article.
func Render(w io.Writer, opts Options, articles []types.Article) error {
	base := strings.TrimRight(opts.Link, "/")
	f := &feeds.Feed{
		Title:       opts.Title,
		Link:        &feeds.Link{Href: base + "/"},
		Description: opts.Description,
		Items:       make([]*feeds.Item, 0, len(articles)),
	}
	if len(articles) > 0 {
		f.Created = articles[0].Time.UTC()
		f.Updated = f.Created
	}

	for _, a := range articles {
		id := strconv.FormatInt(a.ID, 10)
		f.Items = append(f.Items, &feeds.Item{
			Title:       a.Title,
			Link:        &feeds.Link{Href: base + "/api/articles/" + id},
			Description: a.Description,
			Id:          "article-" + id,
			IsPermaLink: "false",
			Created:     a.Time.UTC(),
		})
	}

	doc := (&feeds.Rss{Feed: f}).RssFeed()
	for i, item := range doc.Items {
		item.Category = articles[i].Category
	}
	if err := feeds.WriteXML(doc, w); err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}
	return nil
}
