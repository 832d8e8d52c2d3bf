package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"notice_bot/internal/model"
)

var (
	ciboardRows = []string{
		"table.gitav_table_skin1 tbody tr",
		"table.board tbody tr",
		"table tbody tr",
	}
	ciboardIDPattern = regexp.MustCompile(`/post/(\d+)`)
)

// ciboard parses CodeIgniter boards served at {url}/board/{board_name},
// whose rows link to {url}/post/{id}.
type ciboard struct {
	base
}

func newCIBoard(src model.Source, c Client) Parser {
	return &ciboard{base{src: src, client: c}}
}

func (p *ciboard) listURL() string {
	return p.baseURL() + "/board/" + p.src.Param("board_name", "department_notice")
}

// Fetch implements Parser.
func (p *ciboard) Fetch(ctx context.Context) ([]model.RawNotice, error) {
	body, err := p.client.Get(ctx, p.listURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch ciboard listing: %w", err)
	}
	return p.parse(body)
}

func (p *ciboard) parse(html string) ([]model.RawNotice, error) {
	doc, err := loadDocument(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	rows, _ := trySelectors(doc, ciboardRows)
	if rows == nil {
		return nil, ErrNoRows
	}
	return collect(rows, p.parseRow), nil
}

func (p *ciboard) parseRow(row *goquery.Selection) (model.RawNotice, bool) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return model.RawNotice{}, false
	}
	link, href, ok := firstLink(row)
	if !ok {
		return model.RawNotice{}, false
	}
	id := submatch(ciboardIDPattern, href)
	if id == "" {
		return model.RawNotice{}, false
	}
	title, _ := link.Attr("title")
	title = strings.TrimSpace(title)
	if title == "" {
		title = text(link)
	}
	if title == "" {
		return model.RawNotice{}, false
	}

	n := model.RawNotice{
		ID:     id,
		Title:  title,
		URL:    fmt.Sprintf("%s/post/%s", p.baseURL(), id),
		Pinned: hasPinnedMarker(cells.First(), "span.label"),
	}
	if cells.Length() >= 6 {
		// no, title, author, file, date, views
		n.Author = column(cells, 2)
		n.Date = column(cells, 4)
	} else {
		// no, title, file, date[, views]
		n.Date = column(cells, 3)
	}
	return n, true
}
