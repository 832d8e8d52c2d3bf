package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"notice_bot/internal/model"
)

// trySelectors returns the rows of the first candidate that matches at least
// one element, together with the candidate that matched.
func trySelectors(doc *goquery.Document, candidates []string) (*goquery.Selection, string) {
	for _, c := range candidates {
		if rows := doc.Find(c); rows.Length() > 0 {
			return rows, c
		}
	}
	return nil, ""
}

func loadDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// text returns the whitespace-normalised text of s.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// submatch returns the first capture group of re in s, or "".
func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// firstLink returns the first anchor with an href inside s.
func firstLink(s *goquery.Selection) (*goquery.Selection, string, bool) {
	a := s.Find("a[href]").First()
	if a.Length() == 0 {
		return nil, "", false
	}
	href, _ := a.Attr("href")
	return a, href, true
}

// column returns the text of the i-th cell, or "" when out of range.
func column(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return text(cells.Eq(i))
}

const pinnedText = "공지"

// hasPinnedMarker reports whether cell carries the literal announcement
// marker or one of the badge elements matched by badges.
func hasPinnedMarker(cell *goquery.Selection, badges string) bool {
	if strings.Contains(cell.Text(), pinnedText) {
		return true
	}
	return badges != "" && cell.Find(badges).Length() > 0
}

// collect applies parseRow to every row, keeping the rows it accepts.
// A rejected row never affects the rest of the page.
func collect(rows *goquery.Selection, parseRow func(row *goquery.Selection) (model.RawNotice, bool)) []model.RawNotice {
	var out []model.RawNotice
	rows.Each(func(_ int, row *goquery.Selection) {
		if n, ok := parseRow(row); ok {
			out = append(out, n)
		}
	})
	return out
}
