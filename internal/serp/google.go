package serp

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/pkg/useragent"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultGoogleEndpoint = "https://www.google.com/search"
	DefaultGooglePause    = 2 * time.Second
	defaultGoogleLimit    = 5
)

// GoogleConfig configures a GoogleScrape source.
type GoogleConfig struct {
	// Endpoint is the search URL; the query goes into its q parameter.
	Endpoint string
	// Domain scopes every query with "site:<Domain>". Empty means unscoped.
	Domain string
	// Pause is the minimum gap after every query, successful or not, before
	// the next one starts. Negative disables it. Ignored when Pacer is set.
	Pause time.Duration
	// Pacer is shared by sources that hit the same engine. Nil gives the
	// source its own Pacer built from Pause.
	Pacer     *Pacer
	UserAgent string
	Logger    *slog.Logger
}

// GoogleScrape queries a general web search engine and reads the organic
// result blocks.
type GoogleScrape struct {
	fetcher Fetcher
	cfg     GoogleConfig
	pacer   *Pacer
	logger  *slog.Logger
}

// NewGoogle creates a general-search source.
func NewGoogle(f Fetcher, cfg GoogleConfig) *GoogleScrape {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGoogleEndpoint
	}
	if cfg.Pause == 0 {
		cfg.Pause = DefaultGooglePause
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = useragent.DefaultUserAgent
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = NewPacer(cfg.Pause)
	}
	return &GoogleScrape{fetcher: f, cfg: cfg, pacer: pacer, logger: loggerOrDefault(cfg.Logger)}
}

// Name identifies the source in logs and summaries.
func (g *GoogleScrape) Name() string {
	if g.cfg.Domain == "" {
		return "google"
	}
	return "google:" + g.cfg.Domain
}

// ScopedQuery builds the search string sent for key.
func (g *GoogleScrape) ScopedQuery(key string) string {
	if g.cfg.Domain == "" {
		return key
	}
	return "site:" + g.cfg.Domain + " " + key
}

// searchURL sets the q parameter on the endpoint, keeping any query
// parameters it already carries.
func (g *GoogleScrape) searchURL(key string) string {
	u, err := url.Parse(g.cfg.Endpoint)
	if err != nil {
		return g.cfg.Endpoint + "?q=" + url.QueryEscape(g.ScopedQuery(key))
	}
	q := u.Query()
	q.Set("q", g.ScopedQuery(key))
	u.RawQuery = q.Encode()
	return u.String()
}

// Query returns up to limit candidates in ranking order. Limit <= 0 uses 5.
func (g *GoogleScrape) Query(ctx context.Context, key string, limit int) []product.Candidate {
	if limit <= 0 {
		limit = defaultGoogleLimit
	}

	searchURL := g.searchURL(key)
	var (
		doc *goquery.Document
		ok  bool
	)
	err := g.pacer.Do(ctx, func() {
		doc, ok = fetchDocument(ctx, g.fetcher, g.logger, g.Name(), searchURL, g.cfg.UserAgent)
	})
	if err != nil {
		g.logger.Warn("source query failed", "source", g.Name(), "key", key, "err", err)
		return nil
	}
	if !ok {
		return nil
	}

	var out []product.Candidate
	doc.Find("div.g").EachWithBreak(func(i int, block *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		a := block.Find("a[href]").First()
		h3 := block.Find("h3").First()
		if a.Length() == 0 || h3.Length() == 0 {
			return true
		}
		href, _ := a.Attr("href")
		out = append(out, product.Candidate{
			Title: collapseSpace(h3.Text()),
			Link:  unwrapResultLink(g.cfg.Endpoint, href),
		})
		return true
	})

	g.logger.Debug("general search done", "source", g.Name(), "key", key, "candidates", len(out))
	return out
}

// unwrapResultLink turns the engine's "/url?q=<target>&..." redirect links
// into the target itself and resolves other relative links.
func unwrapResultLink(endpoint, href string) string {
	if strings.HasPrefix(href, "/url?") {
		if u, err := url.Parse(href); err == nil {
			if target := u.Query().Get("q"); target != "" {
				return target
			}
			if target := u.Query().Get("url"); target != "" {
				return target
			}
		}
	}
	return absolute(endpoint, href)
}
