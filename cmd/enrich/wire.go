package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/rotisserie/eris"

	"github.com/FranksOps/enrich/internal/cache"
	"github.com/FranksOps/enrich/internal/config"
	"github.com/FranksOps/enrich/internal/extract"
	"github.com/FranksOps/enrich/internal/fingerprint"
	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/report"
	"github.com/FranksOps/enrich/internal/resolve"
	"github.com/FranksOps/enrich/internal/scraper"
	"github.com/FranksOps/enrich/internal/serp"
	"github.com/FranksOps/enrich/internal/storage"
	"github.com/FranksOps/enrich/internal/storage/csvbackend"
	"github.com/FranksOps/enrich/internal/storage/jsonbackend"
	"github.com/FranksOps/enrich/internal/storage/postgres"
	"github.com/FranksOps/enrich/internal/storage/sqlite"
	"github.com/FranksOps/enrich/pkg/proxy"
	"github.com/FranksOps/enrich/pkg/ratelimit"
	"github.com/FranksOps/enrich/pkg/useragent"
)

// env holds the long-lived components shared by every command.
type env struct {
	Fetcher  *scraper.Fetcher
	Resolver *resolve.Resolver
	Renderer *report.Renderer

	closers []func()
}

// Close releases limiters, caches and the robots auditor.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initEnv builds the fetch stack, sources, extractor and resolver from cfg.
func initEnv(cfg *config.Config, logger *slog.Logger) (*env, error) {
	e := &env{}

	profile, err := fingerprint.ParseProfile(cfg.Fetch.Fingerprint)
	if err != nil {
		return nil, eris.Wrap(err, "init: fingerprint")
	}

	uaPool := useragent.NewPool(nil)
	if cfg.Fetch.UserAgent != "" {
		uaPool = useragent.Fixed(cfg.Fetch.UserAgent)
	}

	var proxies *proxy.Pool
	if cfg.Fetch.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.Fetch.ProxyFile); err != nil {
			return nil, eris.Wrap(err, "init: proxies")
		}
		logger.Info("proxies loaded", "count", proxies.Len())
	}

	limiter := ratelimit.NewLimiter(cfg.Fetch.RPS, cfg.Fetch.Jitter)
	e.closers = append(e.closers, limiter.Stop)

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:            cfg.FetchTimeout(),
		MaxRedirects:       cfg.Fetch.MaxRedirects,
		UseCookieJar:       true,
		MaxBodyBytes:       cfg.Fetch.MaxBodyBytes,
		ProxyPool:          proxies,
		UAPool:             uaPool,
		Fingerprint:        profile,
		Limiter:            limiter,
		InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
		Logger:             logger,
	})
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "init: fetcher")
	}
	e.Fetcher = fetcher

	primary, fallbacks, err := buildSteps(cfg, fetcher, logger)
	if err != nil {
		e.Close()
		return nil, err
	}

	rules, err := cfg.ExtractRules()
	if err != nil {
		e.Close()
		return nil, err
	}
	// Page fetches present the identity robots.txt groups are matched against.
	exCfg := extract.Config{
		Rules:     rules,
		UserAgent: fetcher.UserAgent(),
		Logger:    logger,
	}
	if ttl := cfg.Extract.CacheTTLMins; ttl > 0 {
		pages := cache.NewMemory[product.Partial](time.Duration(ttl)*time.Minute, time.Minute)
		e.closers = append(e.closers, pages.Close)
		exCfg.Cache = pages
	}
	if cfg.Extract.RespectRobots {
		robots := scraper.NewRobotsTxtAuditor(fetcher, time.Duration(cfg.Extract.RobotsTTLHours)*time.Hour, logger)
		e.closers = append(e.closers, robots.Close)
		exCfg.Robots = robots
	}
	extractor, err := extract.New(fetcher, exCfg)
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "init: extractor")
	}

	resolver, err := resolve.New(resolve.Config{
		Primary:   primary,
		Fallbacks: fallbacks,
		Extractor: extractor,
		Logger:    logger,
	})
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "init: resolver")
	}
	e.Resolver = resolver

	renderer, err := report.LoadRenderer(cfg.Output.Template)
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "init: renderer")
	}
	e.Renderer = renderer

	return e, nil
}

// buildSteps turns the source settings into the ordered primary and
// fallback lists. The site search runs by name, the scoped general search
// covers identifiers without one.
func buildSteps(cfg *config.Config, f serp.Fetcher, logger *slog.Logger) (primary, fallbacks []resolve.Step, err error) {
	primaryKey, err := serp.ParseKey(cfg.Search.PrimaryKey)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init: search.primary_key")
	}
	fallbackKey, err := serp.ParseKey(cfg.Search.FallbackKey)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init: search.fallback_key")
	}

	ua := cfg.Fetch.UserAgent
	// Both general searches hit the same engine and share one pacer.
	pacer := serp.NewPacer(cfg.SearchPause())

	if cfg.Site.Enabled {
		primary = append(primary, resolve.Step{
			Source: serp.NewSiteSearch(f, serp.SiteConfig{
				BaseURL:   cfg.Site.BaseURL,
				Param:     cfg.Site.Param,
				Selector:  cfg.Site.Selector,
				UserAgent: ua,
				Logger:    logger,
			}),
			Key:   serp.KeyName,
			Limit: 1,
		})
	}
	primary = append(primary, resolve.Step{
		Source: serp.NewGoogle(f, serp.GoogleConfig{
			Endpoint:  cfg.Search.Endpoint,
			Domain:    cfg.Search.PrimaryDomain,
			Pacer:     pacer,
			UserAgent: ua,
			Logger:    logger,
		}),
		Key:   primaryKey,
		Limit: cfg.Search.PrimaryLimit,
	})

	fallbacks = append(fallbacks, resolve.Step{
		Source: serp.NewGoogle(f, serp.GoogleConfig{
			Endpoint:  cfg.Search.Endpoint,
			Domain:    cfg.Search.FallbackDomain,
			Pacer:     pacer,
			UserAgent: ua,
			Logger:    logger,
		}),
		Key:   fallbackKey,
		Limit: cfg.Search.FallbackLimit,
	})
	if cfg.OpenFoodFacts.Enabled {
		fallbacks = append(fallbacks, resolve.Step{
			Source: serp.NewOpenFoodFacts(f, serp.OpenFoodFactsConfig{
				Endpoint: cfg.OpenFoodFacts.Endpoint,
				RPS:      cfg.OpenFoodFacts.RPS,
				Logger:   logger,
			}),
			Key:   serp.KeyIdentifier,
			Limit: 1,
		})
	}

	return primary, fallbacks, nil
}

// openStore opens the persistence backend named by dsn.
func openStore(ctx context.Context, dsn string) (storage.Backend, error) {
	scheme, location, err := config.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	var b storage.Backend
	switch scheme {
	case "sqlite":
		b, err = sqlite.New(location)
	case "postgres":
		b, err = postgres.New(ctx, location)
	case "json":
		b, err = jsonbackend.New(location)
	case "csv":
		b, err = csvbackend.New(location, csvbackend.Options{HTML: true})
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", scheme)
	}
	return b, nil
}
