package parser

import (
	"context"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"notice_bot/internal/model"
)

var (
	xeBoardRows = []string{
		"table.bd_lst tbody tr",
		"table.bd_tb_lst tbody tr",
		"table.bd_tb tbody tr",
	}
	// Tried in order: short URLs end in /<srl>, long ones carry document_srl=<srl>.
	xeBoardIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/(\d+)(?:\?|#|$)`),
		regexp.MustCompile(`document_srl=(\d+)`),
	}
)

// xeBoard parses XpressEngine module boards at {url}/{mid}.
type xeBoard struct {
	base
}

func newXEBoard(src model.Source, c Client) Parser {
	return &xeBoard{base{src: src, client: c}}
}

func (p *xeBoard) listURL() string {
	return p.baseURL() + "/" + p.src.Param("mid", "")
}

// Fetch implements Parser.
func (p *xeBoard) Fetch(ctx context.Context) ([]model.RawNotice, error) {
	body, err := p.client.Get(ctx, p.listURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch xe listing: %w", err)
	}
	return p.parse(body)
}

func (p *xeBoard) parse(html string) ([]model.RawNotice, error) {
	doc, err := loadDocument(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	rows, _ := trySelectors(doc, xeBoardRows)
	if rows == nil {
		return nil, ErrNoRows
	}
	return collect(rows, p.parseRow), nil
}

func (p *xeBoard) parseRow(row *goquery.Selection) (model.RawNotice, bool) {
	if row.Find("td").Length() < 3 {
		return model.RawNotice{}, false
	}
	link, href, ok := firstLink(row.Find("td.title").First())
	if !ok {
		return model.RawNotice{}, false
	}
	var id string
	for _, re := range xeBoardIDPatterns {
		if id = submatch(re, href); id != "" {
			break
		}
	}
	title := text(link)
	if id == "" || title == "" {
		return model.RawNotice{}, false
	}

	return model.RawNotice{
		ID:     id,
		Title:  title,
		URL:    p.listURL() + "/" + id,
		Author: text(row.Find("td.author").First()),
		Date:   text(row.Find("td.time").First()),
		Pinned: hasPinnedMarker(row.Find("td.no").First(), ""),
	}, true
}
