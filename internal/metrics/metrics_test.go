package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler_ExposesRecordedMetrics(t *testing.T) {
	RecordFetch("shop.example", 200, "", time.Second, 11)
	RecordFetch("www.google.com", 429, "GoogleCaptcha", 200*time.Millisecond, 0)
	RecordFetch("down.example", 0, "", time.Millisecond, 0)

	ts := httptest.NewServer(Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`enrich_fetches_total{blocked_by="",host="shop.example",status="200"}`,
		`enrich_fetches_total{blocked_by="GoogleCaptcha",host="www.google.com",status="429"}`,
		`enrich_fetches_total{blocked_by="",host="down.example",status="error"}`,
		`enrich_fetch_duration_seconds_bucket`,
		`enrich_fetch_bytes_total{host="shop.example"} 11`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestRecordQuery(t *testing.T) {
	hit := testutil.ToFloat64(SourceQueriesTotal.WithLabelValues("test-source", "hit"))
	miss := testutil.ToFloat64(SourceQueriesTotal.WithLabelValues("test-source", "miss"))

	RecordQuery("test-source", 3)
	RecordQuery("test-source", 0)
	RecordQuery("test-source", 0)

	if got := testutil.ToFloat64(SourceQueriesTotal.WithLabelValues("test-source", "hit")) - hit; got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(SourceQueriesTotal.WithLabelValues("test-source", "miss")) - miss; got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestRecordResolutionAndContribution(t *testing.T) {
	before := testutil.ToFloat64(ResolutionsTotal.WithLabelValues("partial", "true"))
	RecordResolution("partial", true)
	if got := testutil.ToFloat64(ResolutionsTotal.WithLabelValues("partial", "true")) - before; got != 1 {
		t.Errorf("expected 1 partial resolution, got %v", got)
	}

	RecordContribution("site", "ingredients", "effects")
	if got := testutil.ToFloat64(FieldContributions.WithLabelValues("site", "effects")); got < 1 {
		t.Errorf("expected effects contribution to be counted, got %v", got)
	}

	filled := testutil.ToFloat64(ExtractionsTotal.WithLabelValues("filled"))
	RecordExtraction(2)
	if got := testutil.ToFloat64(ExtractionsTotal.WithLabelValues("filled")) - filled; got != 1 {
		t.Errorf("expected 1 filled extraction, got %v", got)
	}
}

func TestServer_StartStop(t *testing.T) {
	srv := Start("127.0.0.1:0", nil)
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	var nilSrv *Server
	if err := nilSrv.Stop(context.Background()); err != nil {
		t.Fatalf("nil server stop should be a no-op: %v", err)
	}
}
