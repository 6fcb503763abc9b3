package bypass

import (
	"net/http"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		page   Page
		want   string
		detect bool
	}{
		{
			name: "plain page",
			page: Page{StatusCode: 200, Header: http.Header{"Server": {"nginx"}}, Body: []byte("OK")},
		},
		{
			name:   "cloudflare server header",
			page:   Page{StatusCode: 403, Header: http.Header{"Server": {"cloudflare"}}, Body: []byte("Access Denied")},
			want:   "Cloudflare",
			detect: true,
		},
		{
			name:   "cloudflare turnstile body",
			page:   Page{StatusCode: 503, Body: []byte("<html>... cf-turnstile ...</html>")},
			want:   "Cloudflare",
			detect: true,
		},
		{
			name: "cloudflare header on success is not a block",
			page: Page{StatusCode: 200, Header: http.Header{"Server": {"cloudflare"}}},
		},
		{
			name:   "akamai ghost",
			page:   Page{StatusCode: 403, Header: http.Header{"Server": {"AkamaiGHost"}}},
			want:   "Akamai",
			detect: true,
		},
		{
			name:   "akamai reference page",
			page:   Page{StatusCode: 403, Body: []byte("Access Denied... Reference #123.456")},
			want:   "Akamai",
			detect: true,
		},
		{
			name:   "datadome header",
			page:   Page{StatusCode: 403, Header: http.Header{"X-Datadome": {"protected"}}},
			want:   "DataDome",
			detect: true,
		},
		{
			name:   "datadome captcha",
			page:   Page{StatusCode: 403, Body: []byte(`<script src="https://geo.captcha-delivery.com/c.js">`)},
			want:   "DataDome",
			detect: true,
		},
		{
			name:   "perimeterx",
			page:   Page{StatusCode: 403, Body: []byte(`<div id="px-captcha"></div>`)},
			want:   "PerimeterX",
			detect: true,
		},
		{
			name:   "google unusual traffic",
			page:   Page{StatusCode: 429, Body: []byte("Our systems have detected unusual traffic from your computer network.")},
			want:   "GoogleCaptcha",
			detect: true,
		},
		{
			name: "forbidden without markers",
			page: Page{StatusCode: 403, Body: []byte("nope")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.page, nil)
			if ok != tt.detect || got != tt.want {
				t.Errorf("Detect() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.detect)
			}
		})
	}
}

func TestDetect_CustomSignatures(t *testing.T) {
	sigs := []Signature{{Name: "ShopWall", Statuses: []int{http.StatusOK}, BodyMarkers: []string{"please verify you are human"}}}

	if name, ok := Detect(Page{StatusCode: 200, Body: []byte("please verify you are human")}, sigs); !ok || name != "ShopWall" {
		t.Errorf("expected ShopWall detection, got (%q, %v)", name, ok)
	}
	if _, ok := Detect(Page{StatusCode: 403, Header: http.Header{"Server": {"cloudflare"}}}, sigs); ok {
		t.Error("custom signatures must replace the defaults")
	}
}
