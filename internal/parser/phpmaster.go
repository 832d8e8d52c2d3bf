package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"notice_bot/internal/model"
)

var (
	phpMasterRows      = []string{"div.board_rows"}
	phpMasterIDPattern = regexp.MustCompile(`pidx=(\d+)`)
)

// phpMaster parses the in-house PHP boards. The listing page only carries a
// form; rows come from a second AJAX request that needs the form's hidden
// values and the listing page as referer.
type phpMaster struct {
	base
}

func newPHPMaster(src model.Source, c Client) Parser {
	return &phpMaster{base{src: src, client: c}}
}

func (p *phpMaster) pageIndex() string { return p.src.Param("pg_idx", "") }

func (p *phpMaster) listURL() string {
	return fmt.Sprintf("%s/master.php?pg_idx=%s", p.baseURL(), url.QueryEscape(p.pageIndex()))
}

func (p *phpMaster) ajaxURL() string {
	return p.baseURL() + "/module/board/_main.php"
}

func (p *phpMaster) viewURL(id string) string {
	return fmt.Sprintf("%s/master.php?mod=view&pg_idx=%s&pidx=%s", p.baseURL(), url.QueryEscape(p.pageIndex()), id)
}

// Fetch implements Parser.
func (p *phpMaster) Fetch(ctx context.Context) ([]model.RawNotice, error) {
	page, err := p.client.Get(ctx, p.listURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch php listing: %w", err)
	}
	bidx, id, err := formValues(page)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("pg_idx", p.pageIndex())
	form.Set("bidx", bidx)
	form.Set("id", id)
	form.Set("cate", "")
	form.Set("pidx", "0")
	form.Set("str", "")
	form.Set("page", "1")
	form.Set("mode", "list")

	header := http.Header{}
	header.Set("Referer", p.listURL())
	header.Set("X-Requested-With", "XMLHttpRequest")

	body, err := p.client.PostForm(ctx, p.ajaxURL(), form, header)
	if err != nil {
		return nil, fmt.Errorf("fetch php rows: %w", err)
	}
	return p.parse(body)
}

// formValues reads the hidden board index and session id from the listing page.
func formValues(html string) (bidx, id string, err error) {
	doc, err := loadDocument(html)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	bidx, ok := doc.Find("input#bidx").First().Attr("value")
	if !ok || bidx == "" {
		bidx = "2"
	}
	id, _ = doc.Find("input#id").First().Attr("value")
	return bidx, id, nil
}

func (p *phpMaster) parse(html string) ([]model.RawNotice, error) {
	doc, err := loadDocument(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	rows, _ := trySelectors(doc, phpMasterRows)
	if rows == nil {
		return nil, ErrNoRows
	}
	return collect(rows, p.parseRow), nil
}

func (p *phpMaster) parseRow(row *goquery.Selection) (model.RawNotice, bool) {
	divs := row.Find("div")
	if divs.Length() < 4 {
		return model.RawNotice{}, false
	}
	link, href, ok := firstLink(row)
	if !ok {
		return model.RawNotice{}, false
	}
	id := submatch(phpMasterIDPattern, href)
	title := text(link)
	if id == "" || title == "" {
		return model.RawNotice{}, false
	}

	n := model.RawNotice{
		ID:     id,
		Title:  title,
		URL:    p.viewURL(id),
		Pinned: hasPinnedMarker(divs.First(), ""),
		Author: column(divs, 2),
	}
	if divs.Length() >= 5 {
		n.Date = column(divs, 3)
	}
	return n, true
}
