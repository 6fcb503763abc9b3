package serp

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/pkg/useragent"
)

const (
	DefaultSiteBase     = "https://www.termeszetes.com/en/"
	DefaultSiteParam    = "s"
	DefaultSiteSelector = "h2.woocommerce-loop-product__title a"
)

// SiteConfig configures a SiteSearch source.
type SiteConfig struct {
	// BaseURL is the shop page that accepts the search parameter.
	BaseURL string
	// Param is the query-string key carrying the search key.
	Param string
	// Selector matches result anchors; the first match wins.
	Selector  string
	UserAgent string
	Logger    *slog.Logger
}

// SiteSearch uses a shop's own search page. It yields at most one candidate.
type SiteSearch struct {
	fetcher Fetcher
	cfg     SiteConfig
	logger  *slog.Logger
}

// NewSiteSearch creates a site-local search source.
func NewSiteSearch(f Fetcher, cfg SiteConfig) *SiteSearch {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSiteBase
	}
	if cfg.Param == "" {
		cfg.Param = DefaultSiteParam
	}
	if cfg.Selector == "" {
		cfg.Selector = DefaultSiteSelector
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = useragent.DefaultUserAgent
	}
	return &SiteSearch{fetcher: f, cfg: cfg, logger: loggerOrDefault(cfg.Logger)}
}

// Name identifies the source by the shop host.
func (s *SiteSearch) Name() string {
	if u, err := url.Parse(s.cfg.BaseURL); err == nil && u.Host != "" {
		return "site:" + u.Host
	}
	return "site"
}

func (s *SiteSearch) searchURL(key string) string {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return s.cfg.BaseURL + "?" + s.cfg.Param + "=" + url.QueryEscape(key)
	}
	q := u.Query()
	q.Set(s.cfg.Param, key)
	u.RawQuery = q.Encode()
	return u.String()
}

// Query returns the first search hit. limit is accepted for the Source
// contract; the shop's first hit is the only one considered.
func (s *SiteSearch) Query(ctx context.Context, key string, limit int) []product.Candidate {
	searchURL := s.searchURL(key)
	doc, ok := fetchDocument(ctx, s.fetcher, s.logger, s.Name(), searchURL, s.cfg.UserAgent)
	if !ok {
		return nil
	}

	a := doc.Find(s.cfg.Selector).First()
	if a.Length() == 0 {
		s.logger.Debug("site search found nothing", "source", s.Name(), "key", key)
		return nil
	}
	href, _ := a.Attr("href")
	c := product.Candidate{
		Title: collapseSpace(a.Text()),
		Link:  absolute(searchURL, href),
	}
	if href == "" {
		c.Link = ""
	}
	return []product.Candidate{c}
}
