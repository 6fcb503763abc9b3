// Package serp turns a search key into product candidates. Each Source
// wraps one external lookup: a general search engine scoped to a domain, a
// shop's own search box, or a structured product API.
package serp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/scraper"
	"github.com/PuerkitoBio/goquery"
)

// Source proposes candidates for a search key. Implementations never return
// an error: every failure is logged and reported as no candidates.
type Source interface {
	Name() string
	Query(ctx context.Context, key string, limit int) []product.Candidate
}

// Fetcher is the subset of scraper.Fetcher the sources need.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, opts ...scraper.RequestOption) *scraper.Response
}

// Key selects which part of an identifier a source is queried with.
type Key int

const (
	// KeyName queries with the product name and is skipped when there is none.
	KeyName Key = iota
	// KeyIdentifier queries with the EAN.
	KeyIdentifier
	// KeyNameOrIdentifier prefers the name and falls back to the EAN.
	KeyNameOrIdentifier
)

var keyNames = map[Key]string{
	KeyName:             "name",
	KeyIdentifier:       "ean",
	KeyNameOrIdentifier: "name_or_ean",
}

func (k Key) String() string {
	if s, ok := keyNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Key(%d)", int(k))
}

// ParseKey is the inverse of String.
func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range keyNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("serp: unknown key %q", s)
}

// For returns the search key for id, and false when the key is unavailable.
func (k Key) For(id product.Identifier) (string, bool) {
	name := strings.TrimSpace(id.Name)
	switch k {
	case KeyName:
		return name, name != ""
	case KeyIdentifier:
		return id.EAN, strings.TrimSpace(id.EAN) != ""
	case KeyNameOrIdentifier:
		if name != "" {
			return name, true
		}
		return id.EAN, strings.TrimSpace(id.EAN) != ""
	}
	return "", false
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// fetchDocument fetches rawURL and parses it as HTML. Any failure is logged
// against source and reported as false.
func fetchDocument(ctx context.Context, f Fetcher, logger *slog.Logger, source, rawURL, userAgent string) (*goquery.Document, bool) {
	res := f.Fetch(ctx, rawURL, scraper.WithHeader("User-Agent", userAgent))
	if !res.OK() {
		logger.Warn("source query failed",
			"source", source, "url", rawURL, "status", res.StatusCode,
			"blocked_by", res.BlockedBy, "err", res.Error)
		return nil, false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		logger.Warn("source response unparseable", "source", source, "url", rawURL, "err", err)
		return nil, false
	}
	return doc, true
}

// absolute resolves href against base. It returns href untouched when either
// side fails to parse.
func absolute(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
