package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/FranksOps/enrich/internal/cache"
	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor answers whether a product page may be fetched according
// to its host's robots.txt. Parsed files are cached per host.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	cache   *cache.Memory[*robotstxt.RobotsData]
}

// NewRobotsTxtAuditor creates an auditor that keeps each host's rules for ttl.
// A zero ttl keeps them for the lifetime of the auditor.
func NewRobotsTxtAuditor(fetcher *Fetcher, ttl time.Duration, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   cache.NewMemory[*robotstxt.RobotsData](ttl, 0),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. A missing or
// unreachable robots.txt allows everything. Server errors and cancelled
// fetches allow the current request without being cached.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("scraper: invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return false, fmt.Errorf("scraper: url %q is not absolute", targetURL)
	}

	data := r.rules(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.EscapedPath(), userAgent), nil
}

func (r *RobotsTxtAuditor) rules(ctx context.Context, origin string) *robotstxt.RobotsData {
	if data, ok := r.cache.Get(origin); ok {
		return data
	}

	res := r.fetcher.Fetch(ctx, origin+"/robots.txt", WithHeader("Accept", "text/plain"))
	var data *robotstxt.RobotsData
	switch {
	case ctx.Err() != nil:
		// The caller gave up; the next caller fetches again.
		return nil
	case res.Error != "":
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "origin", origin, "error", res.Error)
	case res.StatusCode >= 500:
		r.logger.Debug("robots.txt temporarily unavailable, allowing this request", "origin", origin, "status", res.StatusCode)
		return nil
	case res.StatusCode >= 400:
		r.logger.Debug("no robots.txt", "origin", origin, "status", res.StatusCode)
	default:
		parsed, err := robotstxt.FromBytes(res.Body)
		if err != nil {
			r.logger.Debug("robots.txt parse failed, defaulting to allow", "origin", origin, "error", err)
			break
		}
		data = parsed
	}

	r.cache.Set(origin, data)
	return data
}

// Close releases the rule cache.
func (r *RobotsTxtAuditor) Close() {
	r.cache.Close()
}
