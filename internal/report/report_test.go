package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/resolve"
)

func sampleOutcomes() []resolve.Outcome {
	return []resolve.Outcome{
		{
			EAN:       "1234567890123",
			Consulted: []string{"site:www.termeszetes.com"},
			Contributions: map[string][]product.Field{
				"site:www.termeszetes.com": {product.FieldTitle, product.FieldLink, product.FieldIngredients, product.FieldDescription},
			},
			State: resolve.StateResolved,
		},
		{
			EAN:          "5999885051011",
			Consulted:    []string{"site:www.termeszetes.com", "google:bionaturorganikus.hu"},
			FallbackUsed: true,
			Contributions: map[string][]product.Field{
				"google:bionaturorganikus.hu": {product.FieldTitle, product.FieldLink},
			},
			State: resolve.StatePartial,
		},
		{
			EAN:          "0000000000000",
			Consulted:    []string{"site:www.termeszetes.com", "google:bionaturorganikus.hu"},
			FallbackUsed: true,
			State:        resolve.StateFailed,
		},
	}
}

func TestGenerateSummary(t *testing.T) {
	start := time.Now()
	end := start.Add(3 * time.Second)

	s := GenerateSummary(sampleOutcomes(), start, end)

	if s.Total != 3 {
		t.Errorf("expected 3 products, got %d", s.Total)
	}
	if s.Resolved != 1 || s.Partial != 1 || s.Failed != 1 {
		t.Errorf("expected 1/1/1 resolved/partial/failed, got %d/%d/%d", s.Resolved, s.Partial, s.Failed)
	}
	if s.FallbackUsed != 2 {
		t.Errorf("expected 2 fallbacks, got %d", s.FallbackUsed)
	}
	if s.Consulted["site:www.termeszetes.com"] != 3 {
		t.Errorf("expected site consulted 3 times, got %d", s.Consulted["site:www.termeszetes.com"])
	}
	if s.Contributions["site:www.termeszetes.com"] != 4 {
		t.Errorf("expected 4 fields from site, got %d", s.Contributions["site:www.termeszetes.com"])
	}
	if len(s.FailedEANs) != 1 || s.FailedEANs[0] != "0000000000000" {
		t.Errorf("unexpected failed EANs %v", s.FailedEANs)
	}
	if s.Duration != 3*time.Second {
		t.Errorf("expected 3s duration, got %v", s.Duration)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	s := GenerateSummary(nil, time.Time{}, time.Time{})
	if s.Total != 0 || s.Consulted == nil || s.Contributions == nil {
		t.Errorf("expected zero summary with initialised maps, got %+v", s)
	}
}

func TestWriters(t *testing.T) {
	now := time.Now()
	s := GenerateSummary(sampleOutcomes(), now, now.Add(time.Second))

	var buf bytes.Buffer
	if err := WriteJSON(&buf, s); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var decoded Summary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded.Total != 3 {
		t.Errorf("expected Total 3 in json, got %d", decoded.Total)
	}

	buf.Reset()
	if err := WriteText(&buf, s); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	text := buf.String()
	for _, want := range []string{"Enrichment Summary", "Resolved:      1", "google:bionaturorganikus.hu: 2", "0000000000000"} {
		if !strings.Contains(text, want) {
			t.Errorf("text report missing %q:\n%s", want, text)
		}
	}

	buf.Reset()
	if err := WriteHTML(&buf, s); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "<h1>Enrichment Report</h1>") {
		t.Errorf("html report missing title")
	}
	if !strings.Contains(html, "<li>0000000000000</li>") {
		t.Errorf("html report missing failed EAN")
	}
}

func TestRenderer_Default(t *testing.T) {
	r, err := NewRenderer(DefaultTemplate)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	out, err := r.Render(product.Record{
		EAN:         "1234567890123",
		Title:       "Termék <b>",
		Description: "Leírás & több",
		Ingredients: "víz",
		Packaging:   "250 ml",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(out, "<h2>Termék &lt;b&gt;</h2>") {
		t.Errorf("title not escaped: %s", out)
	}
	if !strings.Contains(out, "Leírás &amp; több") {
		t.Errorf("description not escaped: %s", out)
	}
	if strings.Contains(out, "Hatások") {
		t.Errorf("empty effects section should be omitted: %s", out)
	}
	if !strings.Contains(out, "Kiszerelés: 250 ml") {
		t.Errorf("packaging missing: %s", out)
	}
}

func TestLoadRenderer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tpl.html")
	if err := os.WriteFile(path, []byte(`<p>{{.product_name}}|{{.effects}}</p>`), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRenderer(path)
	if err != nil {
		t.Fatalf("LoadRenderer failed: %v", err)
	}
	out, err := r.Render(product.Record{Title: "A", Effects: "B"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "<p>A|B</p>" {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := LoadRenderer(filepath.Join(dir, "missing.html")); err == nil {
		t.Error("expected error for missing explicit template")
	}

	if _, err := NewRenderer("{{.product_name"); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadRenderer_DefaultFallback(t *testing.T) {
	t.Chdir(t.TempDir())

	r, err := LoadRenderer("")
	if err != nil {
		t.Fatalf("LoadRenderer failed: %v", err)
	}
	out, err := r.Render(product.Record{Title: "X"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "<h2>X</h2>") {
		t.Errorf("expected default template output, got %q", out)
	}
}
