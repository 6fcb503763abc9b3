package serp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/scraper"
	"golang.org/x/time/rate"
)

const (
	DefaultOpenFoodFactsEndpoint = "https://world.openfoodfacts.org/api/v0/product"
	DefaultOpenFoodFactsAgent    = "enrich/1.0 (+https://github.com/FranksOps/enrich)"
)

// OpenFoodFactsConfig configures an OpenFoodFacts source.
type OpenFoodFactsConfig struct {
	Endpoint string
	// RPS caps request rate against the API. Zero means 1 request per second.
	RPS       float64
	UserAgent string
	Logger    *slog.Logger
}

// OpenFoodFacts looks an EAN up in the Open Food Facts product API. A hit
// carries its attributes in Candidate.Details, so no page extraction runs
// on the API link.
type OpenFoodFacts struct {
	fetcher Fetcher
	cfg     OpenFoodFactsConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

type offResponse struct {
	Status  int         `json:"status"`
	Code    string      `json:"code"`
	Product *offProduct `json:"product"`
}

type offProduct struct {
	ProductName     string `json:"product_name"`
	ProductNameEN   string `json:"product_name_en"`
	GenericName     string `json:"generic_name"`
	IngredientsText string `json:"ingredients_text"`
	Quantity        string `json:"quantity"`
	Brands          string `json:"brands"`
}

func (p offProduct) title() string {
	for _, s := range []string{p.ProductName, p.ProductNameEN, p.GenericName} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// NewOpenFoodFacts creates a structured-API source.
func NewOpenFoodFacts(f Fetcher, cfg OpenFoodFactsConfig) *OpenFoodFacts {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOpenFoodFactsEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultOpenFoodFactsAgent
	}
	return &OpenFoodFacts{
		fetcher: f,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:  loggerOrDefault(cfg.Logger),
	}
}

// Name identifies the source.
func (o *OpenFoodFacts) Name() string { return "openfoodfacts" }

// Query returns at most one candidate whose link is the API URL itself.
func (o *OpenFoodFacts) Query(ctx context.Context, key string, limit int) []product.Candidate {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		o.logger.Warn("source query failed", "source", o.Name(), "key", key, "err", err)
		return nil
	}

	apiURL := o.cfg.Endpoint + "/" + url.PathEscape(key) + ".json"
	res := o.fetcher.Fetch(ctx, apiURL,
		scraper.WithHeader("User-Agent", o.cfg.UserAgent),
		scraper.WithHeader("Accept", "application/json"),
	)
	if !res.OK() {
		o.logger.Warn("source query failed",
			"source", o.Name(), "url", apiURL, "status", res.StatusCode,
			"blocked_by", res.BlockedBy, "err", res.Error)
		return nil
	}

	var payload offResponse
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		o.logger.Warn("source response unparseable", "source", o.Name(), "url", apiURL, "err", err)
		return nil
	}
	if payload.Status != 1 || payload.Product == nil {
		o.logger.Debug("product not in api", "source", o.Name(), "key", key)
		return nil
	}

	// A product without a name leaves the title to other sources.
	p := payload.Product
	return []product.Candidate{{
		Title: p.title(),
		Link:  apiURL,
		Details: &product.Partial{
			Ingredients: strings.TrimSpace(p.IngredientsText),
			Packaging:   strings.TrimSpace(p.Quantity),
			Description: strings.TrimSpace(p.GenericName),
		},
	}}
}
