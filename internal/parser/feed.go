package parser

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"notice_bot/internal/model"
)

// feed reads boards that publish an RSS or Atom feed at {url}.
type feed struct {
	base
}

func newFeed(src model.Source, c Client) Parser {
	return &feed{base{src: src, client: c}}
}

// Fetch implements Parser.
func (p *feed) Fetch(ctx context.Context) ([]model.RawNotice, error) {
	body, err := p.client.Get(ctx, p.src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	return p.parse(body)
}

func (p *feed) parse(body string) ([]model.RawNotice, error) {
	f, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	out := make([]model.RawNotice, 0, len(f.Items))
	for _, item := range f.Items {
		title := strings.Join(strings.Fields(item.Title), " ")
		if title == "" {
			continue
		}
		n := model.RawNotice{
			ID:    itemID(item),
			Title: title,
			URL:   item.Link,
			Date:  item.Published,
		}
		if item.Author != nil {
			n.Author = item.Author.Name
		}
		if len(item.Categories) > 0 {
			n.Category = item.Categories[0]
		}
		out = append(out, n)
	}
	return out, nil
}

// itemID returns the GUID of an item. If the item has no GUID, a SHA-256
// hash of title+link is used.
func itemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
