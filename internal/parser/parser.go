// Package parser turns department listing pages into raw notices.
//
// Every supported board software ("dialect") has its own Parser. Parsers are
// selected by the dialect tag of a source through a lookup table, so adding a
// dialect means adding one constructor to the registry.
package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"notice_bot/internal/model"
)

var (
	// ErrNoRows is returned when no row selector matched anything on the page.
	ErrNoRows = errors.New("no listing rows matched")
	// ErrUnknownDialect is returned by New for an unsupported dialect tag.
	ErrUnknownDialect = errors.New("unknown parser dialect")
)

// Parser fetches the first listing page of one source.
type Parser interface {
	Fetch(ctx context.Context) ([]model.RawNotice, error)
	SourceKey() string
	DisplayName() string
}

// Client is the HTTP capability parsers need. *fetcher.Fetcher implements it.
type Client interface {
	Get(ctx context.Context, url string, header http.Header) (string, error)
	PostForm(ctx context.Context, url string, form url.Values, header http.Header) (string, error)
}

type constructor func(src model.Source, c Client) Parser

var registry = map[string]constructor{
	"egov":       newEgov,
	"ciboard":    newCIBoard,
	"php_master": newPHPMaster,
	"xe_board":   newXEBoard,
	"rss":        newFeed,
}

// New returns the parser registered for src.Dialect.
func New(src model.Source, c Client) (Parser, error) {
	ctor, ok := registry[src.Dialect]
	if !ok {
		return nil, fmt.Errorf("source %s: %w %q", src.Key, ErrUnknownDialect, src.Dialect)
	}
	return ctor(src, c), nil
}

// Dialects lists the registered dialect tags in sorted order.
func Dialects() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// base carries the identity shared by all dialects.
type base struct {
	src    model.Source
	client Client
}

func (b base) SourceKey() string   { return b.src.Key }
func (b base) DisplayName() string { return b.src.Name }

// baseURL returns the configured URL without a trailing slash.
func (b base) baseURL() string {
	return strings.TrimRight(b.src.URL, "/")
}
