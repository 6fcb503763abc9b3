// Package bypass recognizes bot-protection interstitials so the scraper can
// treat them as failed fetches instead of extracting attributes from a
// challenge page.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the slice of a fetched response the detectors look at.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Signature describes one protection vendor. A page matches when its status
// is in Statuses and any of the header, server or body markers is present.
type Signature struct {
	Name         string
	Statuses     []int
	ServerTokens []string
	Headers      []string
	BodyMarkers  []string
}

func (s Signature) match(p Page) bool {
	statusHit := false
	for _, code := range s.Statuses {
		if p.StatusCode == code {
			statusHit = true
			break
		}
	}
	if !statusHit {
		return false
	}

	server := strings.ToLower(p.Header.Get("Server"))
	for _, tok := range s.ServerTokens {
		if strings.Contains(server, tok) {
			return true
		}
	}
	for _, h := range s.Headers {
		if p.Header.Get(h) != "" {
			return true
		}
	}
	for _, m := range s.BodyMarkers {
		if bytes.Contains(p.Body, []byte(m)) {
			return true
		}
	}
	return false
}

// Defaults lists the vendors seen in front of shop and search pages.
var Defaults = []Signature{
	{
		Name:         "Cloudflare",
		Statuses:     []int{http.StatusForbidden, http.StatusServiceUnavailable},
		ServerTokens: []string{"cloudflare"},
		BodyMarkers:  []string{"cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare"},
	},
	{
		Name:         "Akamai",
		Statuses:     []int{http.StatusForbidden},
		ServerTokens: []string{"akamai"},
		BodyMarkers:  []string{"Reference #"},
	},
	{
		Name:         "DataDome",
		Statuses:     []int{http.StatusForbidden},
		ServerTokens: []string{"datadome"},
		Headers:      []string{"X-DataDome", "X-DataDome-Response"},
		BodyMarkers:  []string{"geo.captcha-delivery.com"},
	},
	{
		Name:        "PerimeterX",
		Statuses:    []int{http.StatusForbidden},
		Headers:     []string{"X-Px-Captcha"},
		BodyMarkers: []string{"client.perimeterx.net", "px-captcha", "_pxBlock"},
	},
	{
		// Search result pages answer automated traffic with a /sorry/ captcha.
		Name:        "GoogleCaptcha",
		Statuses:    []int{http.StatusOK, http.StatusTooManyRequests, http.StatusServiceUnavailable},
		BodyMarkers: []string{"Our systems have detected unusual traffic", "/sorry/index"},
	},
}

// Detect returns the name of the first signature p matches. With a nil
// sigs slice the Defaults are used.
func Detect(p Page, sigs []Signature) (string, bool) {
	if sigs == nil {
		sigs = Defaults
	}
	for _, s := range sigs {
		if s.match(p) {
			return s.Name, true
		}
	}
	return "", false
}
