// Package scraper fetches search, shop and API pages through a shared
// client that rotates user agents and proxies, mimics browser TLS and flags
// bot-protection interstitials.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/enrich/internal/bypass"
	"github.com/FranksOps/enrich/internal/fingerprint"
	"github.com/FranksOps/enrich/internal/metrics"
	"github.com/FranksOps/enrich/pkg/httpclient"
	"github.com/FranksOps/enrich/pkg/proxy"
	"github.com/FranksOps/enrich/pkg/ratelimit"
	"github.com/FranksOps/enrich/pkg/useragent"
	"github.com/google/uuid"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// MaxBodyBytes caps how much of a response is read. Zero means 8 MiB.
	MaxBodyBytes int64
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// Signatures overrides the bot-protection signatures. Nil uses the defaults.
	Signatures         []bypass.Signature
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

// Response is the outcome of a single fetch. Transport problems are
// reported in Error rather than as a Go error so callers can treat every
// failure uniformly as "no page".
type Response struct {
	ID         string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	BlockedBy  string
	FetchedAt  time.Time
	Error      string
}

// OK reports whether the fetch produced a usable 2xx page.
func (r *Response) OK() bool {
	return r != nil && r.Error == "" && r.BlockedBy == "" &&
		r.StatusCode >= 200 && r.StatusCode < 300
}

// RequestOption adjusts a single outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a header on the request, replacing the fetcher default.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Fetcher performs GET requests. One Fetcher is meant to be shared across a
// run so connections and cookies are reused.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher builds the transport and client for cfg.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy is chosen per request and carried on the request context,
	// so one transport serves the whole rotation.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(fingerprint.Options{
		Profile:            cfg.Fingerprint,
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Header: http.Header{
			"Accept":          {defaultAccept},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: client: %w", err)
	}

	return &Fetcher{config: cfg, client: client, logger: cfg.Logger}, nil
}

// UserAgent returns the first identity of the pool. The page extractor
// presents it and matches robots.txt groups against it.
func (f *Fetcher) UserAgent() string {
	all := f.config.UAPool.All()
	if len(all) == 0 {
		return ""
	}
	return all[0]
}

// Fetch issues a GET for targetURL. It never returns nil.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, opts ...RequestOption) *Response {
	res := &Response{
		ID:        uuid.New().String(),
		URL:       targetURL,
		FetchedAt: time.Now().UTC(),
	}

	if err := f.config.Limiter.Wait(ctx); err != nil {
		res.Error = fmt.Sprintf("rate limiter: %v", err)
		return res
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		res.Error = fmt.Sprintf("build request: %v", err)
		return res
	}
	req.Header.Set("User-Agent", f.config.UAPool.Next())
	for _, opt := range opts {
		opt(req)
	}
	res.URL = req.URL.String()

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
		if activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	host := req.URL.Host
	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		res.Error = fmt.Sprintf("request failed: %v", err)
		res.Duration = time.Since(start)
		metrics.RecordFetch(host, 0, "", res.Duration, 0)
		f.logger.Debug("fetch failed", "url", res.URL, "error", err)
		return res
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		res.Error = fmt.Sprintf("read body: %v", err)
	}

	res.StatusCode = resp.StatusCode
	res.Header = resp.Header
	res.Body = body
	res.Duration = time.Since(start)

	if name, blocked := bypass.Detect(bypass.Page{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       res.Body,
	}, f.config.Signatures); blocked {
		res.BlockedBy = name
		f.logger.Warn("bot protection detected", "url", res.URL, "vendor", name, "status", res.StatusCode)
	}

	metrics.RecordFetch(host, res.StatusCode, res.BlockedBy, res.Duration, len(res.Body))
	return res
}
