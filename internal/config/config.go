// Package config loads enrich settings from enrich.yaml, ENRICH_* environment
// variables and built-in defaults.
package config

import (
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/enrich/internal/extract"
	"github.com/FranksOps/enrich/internal/fingerprint"
	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/serp"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the effective configuration.
type Config struct {
	Input         InputConfig         `yaml:"input" mapstructure:"input"`
	Output        OutputConfig        `yaml:"output" mapstructure:"output"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Fetch         FetchConfig         `yaml:"fetch" mapstructure:"fetch"`
	Search        SearchConfig        `yaml:"search" mapstructure:"search"`
	Site          SiteConfig          `yaml:"site" mapstructure:"site"`
	OpenFoodFacts OpenFoodFactsConfig `yaml:"openfoodfacts" mapstructure:"openfoodfacts"`
	Extract       ExtractConfig       `yaml:"extract" mapstructure:"extract"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Metrics       MetricsConfig       `yaml:"metrics" mapstructure:"metrics"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

type InputConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
}

type OutputConfig struct {
	Raw      string `yaml:"raw" mapstructure:"raw"`
	HTML     string `yaml:"html" mapstructure:"html"`
	Template string `yaml:"template" mapstructure:"template"`
	// Summary is text, json, html or none.
	Summary     string `yaml:"summary" mapstructure:"summary"`
	SummaryFile string `yaml:"summary_file" mapstructure:"summary_file"`
}

// StoreConfig selects an optional persistence backend by DSN scheme:
// sqlite://, postgres://, json:// or csv://.
type StoreConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

type FetchConfig struct {
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRedirects       int     `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxBodyBytes       int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Fingerprint        string  `yaml:"fingerprint" mapstructure:"fingerprint"`
	ProxyFile          string  `yaml:"proxy_file" mapstructure:"proxy_file"`
	UserAgent          string  `yaml:"user_agent" mapstructure:"user_agent"`
	RPS                float64 `yaml:"rps" mapstructure:"rps"`
	Jitter             float64 `yaml:"jitter" mapstructure:"jitter"`
	InsecureSkipVerify bool    `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

type SearchConfig struct {
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	PauseMs        int    `yaml:"pause_ms" mapstructure:"pause_ms"`
	PrimaryDomain  string `yaml:"primary_domain" mapstructure:"primary_domain"`
	PrimaryKey     string `yaml:"primary_key" mapstructure:"primary_key"`
	PrimaryLimit   int    `yaml:"primary_limit" mapstructure:"primary_limit"`
	FallbackDomain string `yaml:"fallback_domain" mapstructure:"fallback_domain"`
	FallbackKey    string `yaml:"fallback_key" mapstructure:"fallback_key"`
	FallbackLimit  int    `yaml:"fallback_limit" mapstructure:"fallback_limit"`
}

type SiteConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Param    string `yaml:"param" mapstructure:"param"`
	Selector string `yaml:"selector" mapstructure:"selector"`
}

type OpenFoodFactsConfig struct {
	Enabled  bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string  `yaml:"endpoint" mapstructure:"endpoint"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
}

type ExtractConfig struct {
	RespectRobots  bool `yaml:"respect_robots" mapstructure:"respect_robots"`
	CacheTTLMins   int  `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	RobotsTTLHours int  `yaml:"robots_ttl_hours" mapstructure:"robots_ttl_hours"`
	// Rules replace the built-in extraction rules when non-empty.
	Rules []RuleConfig `yaml:"rules,omitempty" mapstructure:"rules"`
}

// RuleConfig is one extraction rule: the record field it fills, the
// keywords it looks for and the match mode (contains or quantity).
type RuleConfig struct {
	Field    string   `yaml:"field" mapstructure:"field"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
	Mode     string   `yaml:"mode" mapstructure:"mode"`
}

type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

type ServerConfig struct {
	Addr  string  `yaml:"addr" mapstructure:"addr"`
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

type MetricsConfig struct {
	// Addr exposes /metrics on a separate listener during batch runs.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads the configuration. An empty path looks for enrich.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("enrich")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.path", "products.csv")
	v.SetDefault("input.sheet", "")
	v.SetDefault("output.raw", "product_data_raw.csv")
	v.SetDefault("output.html", "product_data_with_descriptions.csv")
	v.SetDefault("output.template", "")
	v.SetDefault("output.summary", "text")
	v.SetDefault("output.summary_file", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.max_body_bytes", 8<<20)
	v.SetDefault("fetch.fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.rps", 0)
	v.SetDefault("fetch.jitter", 0.0)
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("search.endpoint", "https://www.google.com/search")
	v.SetDefault("search.pause_ms", 2000)
	v.SetDefault("search.primary_domain", "termeszetes.com")
	v.SetDefault("search.primary_key", "ean")
	v.SetDefault("search.primary_limit", 5)
	v.SetDefault("search.fallback_domain", "bionaturorganikus.hu")
	v.SetDefault("search.fallback_key", "name_or_ean")
	v.SetDefault("search.fallback_limit", 3)
	v.SetDefault("site.enabled", true)
	v.SetDefault("site.base_url", "https://www.termeszetes.com/en/")
	v.SetDefault("site.param", "s")
	v.SetDefault("site.selector", "h2.woocommerce-loop-product__title a")
	v.SetDefault("openfoodfacts.enabled", true)
	v.SetDefault("openfoodfacts.endpoint", "https://world.openfoodfacts.org/api/v0/product")
	v.SetDefault("openfoodfacts.rps", 1.0)
	v.SetDefault("extract.respect_robots", true)
	v.SetDefault("extract.cache_ttl_mins", 60)
	v.SetDefault("extract.robots_ttl_hours", 24)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rps", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects settings the rest of the program cannot act on.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return eris.Errorf("config: log.format %q: want text or json", c.Log.Format)
	}
	switch c.Output.Summary {
	case "text", "json", "html", "none":
	default:
		return eris.Errorf("config: output.summary %q: want text, json, html or none", c.Output.Summary)
	}
	if _, err := fingerprint.ParseProfile(c.Fetch.Fingerprint); err != nil {
		return eris.Wrap(err, "config: fetch.fingerprint")
	}
	if c.Fetch.TimeoutSecs <= 0 {
		return eris.Errorf("config: fetch.timeout_secs must be positive, got %d", c.Fetch.TimeoutSecs)
	}
	if c.Pipeline.Concurrency < 1 {
		return eris.Errorf("config: pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Search.PrimaryLimit < 1 || c.Search.FallbackLimit < 1 {
		return eris.New("config: search limits must be at least 1")
	}
	for _, k := range []string{c.Search.PrimaryKey, c.Search.FallbackKey} {
		if _, err := serp.ParseKey(k); err != nil {
			return eris.Wrap(err, "config: search key")
		}
	}
	if _, err := c.ExtractRules(); err != nil {
		return err
	}
	if c.Store.DSN != "" {
		if _, _, err := ParseDSN(c.Store.DSN); err != nil {
			return err
		}
	}
	return nil
}

// FetchTimeout returns fetch.timeout_secs as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSecs) * time.Second
}

// ExtractRules converts extract.rules for the page extractor. Nil means the
// built-in rules.
func (c *Config) ExtractRules() ([]extract.Rule, error) {
	if len(c.Extract.Rules) == 0 {
		return nil, nil
	}
	rules := make([]extract.Rule, 0, len(c.Extract.Rules))
	for i, rc := range c.Extract.Rules {
		mode, err := extract.ParseMode(rc.Mode)
		if err != nil {
			return nil, eris.Wrapf(err, "config: extract.rules[%d]", i)
		}
		if len(rc.Keywords) == 0 {
			return nil, eris.Errorf("config: extract.rules[%d]: no keywords", i)
		}
		rules = append(rules, extract.Rule{
			Field:    product.Field(strings.ToLower(strings.TrimSpace(rc.Field))),
			Keywords: rc.Keywords,
			Mode:     mode,
		})
	}
	if err := extract.ValidateRules(rules); err != nil {
		return nil, eris.Wrap(err, "config: extract.rules")
	}
	return rules, nil
}

// SearchPause returns search.pause_ms as a duration. A non-positive value
// disables pacing and is returned as -1.
func (c *Config) SearchPause() time.Duration {
	if c.Search.PauseMs <= 0 {
		return -1
	}
	return time.Duration(c.Search.PauseMs) * time.Millisecond
}

// ParseDSN splits a store DSN into its scheme and the location the backend
// opens. Postgres DSNs are returned whole.
func ParseDSN(dsn string) (scheme, location string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", eris.Wrap(err, "config: store.dsn")
	}
	rest := strings.TrimPrefix(dsn, u.Scheme+"://")
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", dsn, nil
	case "sqlite", "json", "csv":
		if rest == "" {
			return "", "", eris.Errorf("config: store.dsn %q has no path", dsn)
		}
		return u.Scheme, rest, nil
	default:
		return "", "", eris.Errorf("config: store.dsn scheme %q: want sqlite, postgres, json or csv", u.Scheme)
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, eris.Wrapf(err, "config: log.level %q", s)
	}
	return l, nil
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// WriteYAML dumps the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	return eris.Wrap(enc.Close(), "config: encode yaml")
}
