// Package extract reads product attributes off a product page using an
// ordered list of keyword rules.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FranksOps/enrich/internal/cache"
	"github.com/FranksOps/enrich/internal/metrics"
	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/scraper"
	"github.com/FranksOps/enrich/pkg/useragent"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Fetcher is the subset of scraper.Fetcher the extractor needs.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, opts ...scraper.RequestOption) *scraper.Response
}

// RobotsChecker gates page fetches. *scraper.RobotsTxtAuditor satisfies it.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error)
}

// Config configures a PageExtractor.
type Config struct {
	// Rules default to DefaultRules. Unless a rule fills it, the description
	// comes from the meta tag or the first description block.
	Rules     []Rule
	UserAgent string
	// Robots, when set, is consulted before every page fetch.
	Robots RobotsChecker
	// Cache, when set, memoizes results per link.
	Cache  *cache.Memory[product.Partial]
	Logger *slog.Logger
}

// PageExtractor fetches product pages and applies the rules to them.
type PageExtractor struct {
	fetcher Fetcher
	rules   []compiledRule
	cfg     Config
	logger  *slog.Logger
}

// New compiles cfg.Rules and returns an extractor. Only a bad rule set is an
// error.
func New(f Fetcher, cfg Config) (*PageExtractor, error) {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = useragent.DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	return &PageExtractor{fetcher: f, rules: rules, cfg: cfg, logger: cfg.Logger}, nil
}

// Extract returns the attributes found on the page at link. Transport
// failures, non-2xx answers, bot walls and robots.txt refusals all yield an
// empty Partial.
func (e *PageExtractor) Extract(ctx context.Context, link string) product.Partial {
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		e.logger.Warn("page extraction skipped", "url", link, "err", "not an absolute http(s) link")
		return product.Partial{}
	}
	if e.cfg.Cache != nil {
		if p, ok := e.cfg.Cache.Get(link); ok {
			e.logger.Debug("page extraction cache hit", "url", link)
			return p
		}
	}

	if e.cfg.Robots != nil {
		allowed, err := e.cfg.Robots.IsAllowed(ctx, link, e.cfg.UserAgent)
		if err != nil || !allowed {
			e.logger.Warn("page extraction disallowed by robots.txt", "url", link, "err", err)
			return product.Partial{}
		}
	}

	res := e.fetcher.Fetch(ctx, link, scraper.WithHeader("User-Agent", e.cfg.UserAgent))
	if !res.OK() {
		e.logger.Warn("page extraction failed",
			"url", link, "status", res.StatusCode, "blocked_by", res.BlockedBy, "err", res.Error)
		metrics.RecordExtraction(0)
		return product.Partial{}
	}

	p, err := e.parse(res.Body)
	if err != nil {
		e.logger.Warn("page extraction failed", "url", link, "err", err)
		metrics.RecordExtraction(0)
		return product.Partial{}
	}

	metrics.RecordExtraction(filledCount(p))
	if e.cfg.Cache != nil {
		e.cfg.Cache.Set(link, p)
	}
	return p
}

// Parse applies rules to an HTML document without fetching anything. Nil
// rules mean DefaultRules.
func Parse(body []byte, rules []Rule) (product.Partial, error) {
	if rules == nil {
		rules = DefaultRules
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return product.Partial{}, err
	}
	return (&PageExtractor{rules: compiled}).parse(body)
}

func (e *PageExtractor) parse(body []byte) (product.Partial, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return product.Partial{}, fmt.Errorf("extract: parse html: %w", err)
	}

	var p product.Partial
	var root *html.Node
	if b := doc.Find("body").First(); b.Length() > 0 {
		root = b.Get(0)
	}
	for _, r := range e.rules {
		if p.Get(r.field) != "" || root == nil {
			continue
		}
		if n := firstMatchingText(root, r.match); n != nil && n.Parent != nil {
			p.Set(r.field, normalizedText(n.Parent))
		}
	}
	if p.Description == "" {
		p.Description = description(doc)
	}
	return p, nil
}

func description(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if content = strings.TrimSpace(content); content != "" {
			return content
		}
	}
	block := doc.Find("div, p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return strings.Contains(strings.ToLower(class), "description")
	}).First()
	if block.Length() == 0 {
		return ""
	}
	return normalizedText(block.Get(0))
}

func skipped(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// firstMatchingText returns the first text node under root, in document
// order, for which match is true.
func firstMatchingText(root *html.Node, match matcher) *html.Node {
	if skipped(root) {
		return nil
	}
	if root.Type == html.TextNode {
		if match(root.Data) {
			return root
		}
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := firstMatchingText(c, match); n != nil {
			return n
		}
	}
	return nil
}

// normalizedText joins the trimmed, non-empty text nodes under n with
// single spaces.
func normalizedText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skipped(n) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func filledCount(p product.Partial) int {
	n := 0
	for _, v := range []string{p.Ingredients, p.Effects, p.Packaging, p.Description} {
		if v != "" {
			n++
		}
	}
	return n
}
