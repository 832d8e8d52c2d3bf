package parser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"notice_bot/internal/model"
)

var (
	egovRows = []string{
		"table.board-list tbody tr",
		"table.bbs-list tbody tr",
		".boardList tbody tr",
		"table tbody tr",
	}
	egovIDPattern = regexp.MustCompile(`nttNo=(\d+)`)
	egovBadges    = ".notice, .ico_notice, img[alt*='공지']"
)

// egov parses the government-framework boards used by the main university site.
// Listing: {url}?bbsNo=&key=&pageUnit=&pageIndex=1, rows link with nttNo=<id>.
type egov struct {
	base
}

func newEgov(src model.Source, c Client) Parser {
	return &egov{base{src: src, client: c}}
}

func (p *egov) listURL() string {
	return fmt.Sprintf("%s?bbsNo=%s&key=%s&pageUnit=%s&pageIndex=1",
		p.src.URL,
		url.QueryEscape(p.src.Param("bbsNo", "")),
		url.QueryEscape(p.src.Param("key", "")),
		url.QueryEscape(p.src.Param("pageUnit", "10")),
	)
}

func (p *egov) viewURL(id string) string {
	view := strings.Replace(p.src.URL, "selectBbsNttList.do", "selectBbsNttView.do", 1)
	return fmt.Sprintf("%s?bbsNo=%s&key=%s&nttNo=%s",
		view,
		url.QueryEscape(p.src.Param("bbsNo", "")),
		url.QueryEscape(p.src.Param("key", "")),
		id,
	)
}

// Fetch implements Parser.
func (p *egov) Fetch(ctx context.Context) ([]model.RawNotice, error) {
	body, err := p.client.Get(ctx, p.listURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch egov listing: %w", err)
	}
	return p.parse(body)
}

func (p *egov) parse(html string) ([]model.RawNotice, error) {
	doc, err := loadDocument(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	rows, _ := trySelectors(doc, egovRows)
	if rows == nil {
		return nil, ErrNoRows
	}
	return collect(rows, p.parseRow), nil
}

func (p *egov) parseRow(row *goquery.Selection) (model.RawNotice, bool) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return model.RawNotice{}, false
	}
	link, href, ok := firstLink(row)
	if !ok {
		return model.RawNotice{}, false
	}
	id := submatch(egovIDPattern, href)
	title := text(link)
	if id == "" || title == "" {
		return model.RawNotice{}, false
	}

	n := model.RawNotice{
		ID:     id,
		Title:  title,
		URL:    p.viewURL(id),
		Pinned: hasPinnedMarker(cells.First(), egovBadges),
	}
	switch {
	case cells.Length() >= 6:
		// no, category, title, author, date, views
		n.Category = column(cells, 1)
		n.Author = column(cells, 3)
		n.Date = column(cells, 4)
	case cells.Length() == 5:
		// no, title, author, date, views
		n.Author = column(cells, 2)
		n.Date = column(cells, 3)
	}
	return n, true
}
