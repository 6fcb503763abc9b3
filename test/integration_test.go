//go:build integration

package test

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/enrich/internal/cache"
	"github.com/FranksOps/enrich/internal/catalog"
	"github.com/FranksOps/enrich/internal/extract"
	"github.com/FranksOps/enrich/internal/fingerprint"
	"github.com/FranksOps/enrich/internal/pipeline"
	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/report"
	"github.com/FranksOps/enrich/internal/resolve"
	"github.com/FranksOps/enrich/internal/scraper"
	"github.com/FranksOps/enrich/internal/serp"
	"github.com/FranksOps/enrich/internal/storage"
	"github.com/FranksOps/enrich/internal/storage/csvbackend"
	"github.com/FranksOps/enrich/pkg/ratelimit"
	"github.com/FranksOps/enrich/pkg/useragent"
)

const chiaPage = `<!DOCTYPE html>
<html>
<head>
  <title>Chia mag 500g</title>
  <meta name="description" content="Organikus chia mag.">
</head>
<body>
  <p class="size">Kiszerelés: <strong>500 g</strong></p>
  <p>Összetevők: 100% chia mag</p>
  <p>Hatás: támogatja az emésztést.</p>
</body>
</html>`

const (
	eanSite     = "5999887654321"
	eanFallback = "4006040000002"
	eanUnknown  = "0000000000000"
)

func newShop(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nAllow: /\n")
	})
	mux.HandleFunc("/shop/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Query().Get("s") != "Chia mag" {
			fmt.Fprint(w, `<html><body><p>Nincs találat</p></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>
			<h2 class="woocommerce-loop-product__title"><a href="/product/chia">Chia mag 500g</a></h2>
			<h2 class="woocommerce-loop-product__title"><a href="/product/other">Other</a></h2>
		</body></html>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		q := r.URL.Query().Get("q")
		if strings.Contains(q, "site:primary.test") && strings.Contains(q, eanFallback) {
			target := url.QueryEscape(srv.URL + "/product/blocked")
			fmt.Fprintf(w, `<html><body>
				<div class="g"><a href="/url?q=%s&sa=U"><h3>Zabpehely 500 g</h3></a></div>
			</body></html>`, target)
			return
		}
		fmt.Fprint(w, `<html><body><p>No results</p></body></html>`)
	})
	mux.HandleFunc("/product/chia", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, chiaPage)
	})
	mux.HandleFunc("/product/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><body>cf-browser-verification</body></html>`)
	})
	mux.HandleFunc("/off/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/"+eanFallback+".json") {
			fmt.Fprint(w, `{"status":1,"product":{"product_name":"Oat flakes",
				"generic_name":"Whole grain oat flakes","ingredients_text":"oats","quantity":"500 g"}}`)
			return
		}
		fmt.Fprint(w, `{"status":0,"status_verbose":"product not found"}`)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIntegration_BatchRun(t *testing.T) {
	// 1. Setup mock shop, search engine and product API
	srv := newShop(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ids, err := catalog.ReadCSV(strings.NewReader(
		"EAN,Name\n" + eanSite + ",Chia mag\n" + eanFallback + ",\n" + eanUnknown + ",\n"))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	// 2. Setup fetch stack, sources and resolver
	limiter := ratelimit.NewLimiter(0, 0)
	defer limiter.Stop()
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     5 * time.Second,
		UAPool:      useragent.Fixed("enrich-test"),
		Fingerprint: fingerprint.ProfileGo,
		Limiter:     limiter,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	robots := scraper.NewRobotsTxtAuditor(fetcher, time.Hour, logger)
	defer robots.Close()
	pages := cache.NewMemory[product.Partial](time.Hour, time.Minute)
	defer pages.Close()

	extractor, err := extract.New(fetcher, extract.Config{
		UserAgent: "enrich-test",
		Robots:    robots,
		Cache:     pages,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}

	google := func(domain string) *serp.GoogleScrape {
		return serp.NewGoogle(fetcher, serp.GoogleConfig{
			Endpoint: srv.URL + "/search",
			Domain:   domain,
			Pause:    -1,
			Logger:   logger,
		})
	}
	resolver, err := resolve.New(resolve.Config{
		Primary: []resolve.Step{
			{Source: serp.NewSiteSearch(fetcher, serp.SiteConfig{
				BaseURL:  srv.URL + "/shop/",
				Param:    "s",
				Selector: "h2.woocommerce-loop-product__title a",
				Logger:   logger,
			}), Key: serp.KeyName, Limit: 1},
			{Source: google("primary.test"), Key: serp.KeyIdentifier, Limit: 5},
		},
		Fallbacks: []resolve.Step{
			{Source: google("fallback.test"), Key: serp.KeyNameOrIdentifier, Limit: 3},
			{Source: serp.NewOpenFoodFacts(fetcher, serp.OpenFoodFactsConfig{
				Endpoint: srv.URL + "/off",
				Logger:   logger,
			}), Key: serp.KeyIdentifier, Limit: 1},
		},
		Extractor: extractor,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}

	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.csv")
	htmlPath := filepath.Join(dir, "html.csv")
	raw, err := csvbackend.New(rawPath, csvbackend.Options{Truncate: true})
	if err != nil {
		t.Fatalf("raw output: %v", err)
	}
	withHTML, err := csvbackend.New(htmlPath, csvbackend.Options{HTML: true, Truncate: true})
	if err != nil {
		t.Fatalf("html output: %v", err)
	}
	renderer, err := report.NewRenderer(report.DefaultTemplate)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	// 3. Execute batch
	p := &pipeline.Pipeline{
		Resolver:    resolver,
		Renderer:    renderer,
		Stores:      []storage.Backend{raw, withHTML},
		Concurrency: 2,
		Logger:      logger,
	}
	res, err := p.Run(context.Background(), ids)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	raw.Close()
	withHTML.Close()

	// 4. Verify records
	site := res.Records[0]
	if site.Title != "Chia mag 500g" || site.Link != srv.URL+"/product/chia" {
		t.Errorf("site record title/link = %q / %q", site.Title, site.Link)
	}
	if site.Description != "Organikus chia mag." || site.Ingredients != "Összetevők: 100% chia mag" {
		t.Errorf("site record attributes = %+v", site)
	}
	if out := res.Outcomes[0]; out.State != resolve.StateResolved || out.FallbackUsed {
		t.Errorf("site outcome = %+v", out)
	}

	fb := res.Records[1]
	if fb.Title != "Zabpehely 500 g" || fb.Link != srv.URL+"/product/blocked" {
		t.Errorf("search hit must keep the first title/link, got %q / %q", fb.Title, fb.Link)
	}
	if fb.Ingredients != "oats" || fb.Description != "Whole grain oat flakes" || fb.Packaging != "500 g" {
		t.Errorf("fallback attributes = %+v", fb)
	}
	out := res.Outcomes[1]
	if out.State != resolve.StateResolved || !out.FallbackUsed {
		t.Errorf("fallback outcome = %+v", out)
	}
	wantConsulted := []string{"google:primary.test", "google:fallback.test", "openfoodfacts"}
	if strings.Join(out.Consulted, ",") != strings.Join(wantConsulted, ",") {
		t.Errorf("consulted = %v, want %v", out.Consulted, wantConsulted)
	}

	if unknown := res.Records[2]; unknown.Resolved() || unknown.EAN != eanUnknown {
		t.Errorf("unknown record = %+v", unknown)
	}
	if res.Outcomes[2].State != resolve.StateFailed {
		t.Errorf("unknown outcome = %+v", res.Outcomes[2])
	}

	// 5. Verify output tables
	rows := readCSV(t, rawPath)
	if len(rows) != 4 {
		t.Fatalf("raw rows = %d, want header + 3", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(product.Columns, ",") {
		t.Errorf("raw header = %v", rows[0])
	}
	for i, ean := range []string{eanSite, eanFallback, eanUnknown} {
		if rows[i+1][0] != ean {
			t.Errorf("row %d EAN = %q, want %q", i+1, rows[i+1][0], ean)
		}
	}

	htmlRows := readCSV(t, htmlPath)
	last := len(htmlRows[0]) - 1
	if htmlRows[0][last] != csvbackend.ColumnDescriptionHTML {
		t.Errorf("html header = %v", htmlRows[0])
	}
	if !strings.Contains(htmlRows[1][last], "Chia mag 500g") {
		t.Errorf("rendered description = %q", htmlRows[1][last])
	}

	summary := report.GenerateSummary(res.Outcomes, res.StartTime, res.EndTime)
	if summary.Resolved != 2 || summary.Failed != 1 || summary.FallbackUsed != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}
