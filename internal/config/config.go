// Package config provides configuration management for the harvester.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingBaseURL           = errors.New("source.base_url is required")
	ErrInvalidBaseURL           = errors.New("source.base_url must be an absolute http(s) URL")
	ErrMissingListingURL        = errors.New("source.listing_url is required")
	ErrMissingDetailPath        = errors.New("source.detail_path must contain {id}")
	ErrInvalidIdentifierPattern = errors.New("source.identifier_pattern must compile and have one capture group")
	ErrInvalidLogoPattern       = errors.New("source.logo_pattern is invalid regex")
	ErrInvalidMaxItems          = errors.New("discovery.max_items must be non-negative")
	ErrInvalidScrollAttempts    = errors.New("discovery.max_scroll_attempts must be at least 1")
	ErrInvalidStallLimit        = errors.New("discovery.stall_limit must be at least 1")
	ErrInvalidWorkers           = errors.New("extraction.workers must be at least 1")
	ErrInvalidPrecedence        = errors.New("extraction.logo_precedence must be 'listing' or 'detail'")
	ErrInvalidDriver            = errors.New("browser.driver must be one of: chrome, http, replay")
	ErrMissingReplayDir         = errors.New("browser.replay_dir is required for the replay driver")
	ErrInvalidEvalTimeout       = errors.New("browser.eval_timeout_ms must be at least 1")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrInvalidLimits            = errors.New("normalize limits must be positive")
	ErrInvalidCategorySource    = errors.New("categories.source must be one of: none, http, sqlite, mysql, file")
	ErrMissingCategoryLocation  = errors.New("categories source requires url, dsn or path")
	ErrMissingOutputDir         = errors.New("output.dir is required")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
)

// Logo precedence policies.
const (
	PrecedenceListing = "listing"
	PrecedenceDetail  = "detail"
)

// Browser drivers.
const (
	DriverChrome = "chrome"
	DriverHTTP   = "http"
	DriverReplay = "replay"
)

// Category sources.
const (
	CategorySourceNone   = "none"
	CategorySourceHTTP   = "http"
	CategorySourceSQLite = "sqlite"
	CategorySourceMySQL  = "mysql"
	CategorySourceFile   = "file"
)

// Environment variables recognized by ApplyEnv.
const (
	EnvMaxItems          = "HARVEST_MAX_ITEMS"
	EnvMaxScrollAttempts = "HARVEST_MAX_SCROLL_ATTEMPTS"
	EnvLogoDedup         = "HARVEST_LOGO_DEDUP"
	EnvWorkers           = "HARVEST_WORKERS"
	EnvHeadless          = "HARVEST_HEADLESS"
	EnvOutputDir         = "HARVEST_OUTPUT_DIR"
	EnvLogLevel          = "HARVEST_LOG_LEVEL"
	EnvCategoryURL       = "HARVEST_CATEGORY_SOURCE_URL"
	EnvCategoryAPIKey    = "HARVEST_CATEGORY_API_KEY"
)

// Config represents the complete harvester configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Browser    BrowserConfig    `yaml:"browser"`
	Retry      RetryPolicy      `yaml:"retry"`
	Normalize  NormalizeConfig  `yaml:"normalize"`
	Categories CategoriesConfig `yaml:"categories"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig describes the catalog site being harvested.
type SourceConfig struct {
	BaseURL           string   `yaml:"base_url"`
	ListingURL        string   `yaml:"listing_url"`
	DetailPath        string   `yaml:"detail_path"`
	ItemLinkSelector  string   `yaml:"item_link_selector"`
	CardSelector      string   `yaml:"card_selector"`
	IdentifierPattern string   `yaml:"identifier_pattern"`
	LogoPattern       string   `yaml:"logo_pattern"`
	PlaceholderNames  []string `yaml:"placeholder_names"`
	TrackingToken     string   `yaml:"tracking_token"`
}

// DiscoveryConfig bounds the infinite-scroll crawl.
type DiscoveryConfig struct {
	MaxItems          int `yaml:"max_items"`
	MaxScrollAttempts int `yaml:"max_scroll_attempts"`
	StallLimit        int `yaml:"stall_limit"`
	ScrollBackPx      int `yaml:"scroll_back_px"`
	ScrollPauseMs     int `yaml:"scroll_pause_ms"`
	GrowthTimeoutMs   int `yaml:"growth_timeout_ms"`
	SettleDelayMs     int `yaml:"settle_delay_ms"`
	ImagePollAttempts int `yaml:"image_poll_attempts"`
	ImagePollDelayMs  int `yaml:"image_poll_interval_ms"`
}

// ExtractionConfig controls detail page visits.
type ExtractionConfig struct {
	LogoPrecedence   string `yaml:"logo_precedence"`
	Workers          int    `yaml:"workers"`
	NavigateDelayMs  int    `yaml:"navigate_delay_ms"`
	SectionLookahead int    `yaml:"section_lookahead"`
}

// DedupConfig toggles the logo deduplication registry.
type DedupConfig struct {
	LogoEnabled *bool `yaml:"logo_enabled"`
}

// BrowserConfig selects the page inspection driver.
type BrowserConfig struct {
	Driver        string `yaml:"driver"`
	UserAgent     string `yaml:"user_agent"`
	ReplayDir     string `yaml:"replay_dir"`
	WaitUntil     string `yaml:"wait_until"`
	Headless      *bool  `yaml:"headless"`
	BodyLimitKb   int    `yaml:"body_limit_kb"`
	EvalTimeoutMs int    `yaml:"eval_timeout_ms"`
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// NormalizeConfig caps field sizes and configures URL rewriting.
type NormalizeConfig struct {
	MaxName             int    `yaml:"max_name"`
	MaxShortDescription int    `yaml:"max_short_description"`
	MaxFullDescription  int    `yaml:"max_full_description"`
	MaxCategory         int    `yaml:"max_category"`
	MaxPlatforms        int    `yaml:"max_platforms"`
	MaxPlatformLength   int    `yaml:"max_platform_length"`
	MaxFeatureTags      int    `yaml:"max_feature_tags"`
	MaxFeatureTagLength int    `yaml:"max_feature_tag_length"`
	TrackingParam       string `yaml:"tracking_param"`
	AttributionValue    string `yaml:"attribution_value"`
}

// CategoriesConfig points at the authoritative category list.
type CategoriesConfig struct {
	Source string `yaml:"source"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	Path   string `yaml:"path"`
}

// OutputConfig defines output behavior.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	Compact      bool   `yaml:"compact"`
	CreateBackup bool   `yaml:"create_backup"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration for the toolify.ai catalog.
func Default() *Config {
	logoDedup, headless := true, true

	return &Config{
		Source: SourceConfig{
			BaseURL:           "https://www.toolify.ai",
			ListingURL:        "https://www.toolify.ai/new",
			DetailPath:        "/tool/{id}",
			ItemLinkSelector:  `a[href*="/tool/"]`,
			CardSelector:      `.tool-item, .card, li, article`,
			IdentifierPattern: `/tool/([A-Za-z0-9][A-Za-z0-9._-]*)`,
			LogoPattern:       `(?i)/\d+_\d+_\d+\.(?:webp|png|jpe?g|gif|svg)`,
			PlaceholderNames:  []string{"default", "placeholder", "loading", "blank", "avatar", "no-image"},
			TrackingToken:     "toolify",
		},
		Discovery: DiscoveryConfig{
			MaxItems:          0,
			MaxScrollAttempts: 200,
			StallLimit:        5,
			ScrollBackPx:      400,
			ScrollPauseMs:     300,
			GrowthTimeoutMs:   5000,
			SettleDelayMs:     1500,
			ImagePollAttempts: 10,
			ImagePollDelayMs:  500,
		},
		Extraction: ExtractionConfig{
			LogoPrecedence:   PrecedenceListing,
			Workers:          1,
			NavigateDelayMs:  1000,
			SectionLookahead: 6,
		},
		Dedup: DedupConfig{
			LogoEnabled: &logoDedup,
		},
		Browser: BrowserConfig{
			Driver:        DriverChrome,
			WaitUntil:     "load",
			Headless:      &headless,
			BodyLimitKb:   4096,
			EvalTimeoutMs: 10000,
		},
		Retry: RetryPolicy{
			MaxAttempts:       3,
			InitialDelayMs:    500,
			MaxDelayMs:        30000,
			BackoffMultiplier: 2.0,
			TimeoutSec:        60,
		},
		Normalize: NormalizeConfig{
			MaxName:             200,
			MaxShortDescription: 500,
			MaxFullDescription:  2000,
			MaxCategory:         100,
			MaxPlatforms:        10,
			MaxPlatformLength:   50,
			MaxFeatureTags:      20,
			MaxFeatureTagLength: 50,
			TrackingParam:       "utm_source",
			AttributionValue:    "clarifyall.com",
		},
		Categories: CategoriesConfig{
			Source: CategorySourceNone,
			Table:  "categories",
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds the effective configuration: defaults, then the YAML file at
// filepath (skipped when empty), then a .env file and environment overrides.
func LoadConfig(filepath string) (*Config, error) {
	cfg := Default()

	if filepath != "" {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}

		if err := mergeOverrides(cfg, fileCfg); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays recognized environment variables. Malformed numbers and
// booleans are ignored and the configured value is kept.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var overrides Config

	if raw, ok := lookup(getenv, EnvMaxItems); ok {
		n, err := strconv.Atoi(raw)

		switch {
		case strings.EqualFold(raw, "null"), err == nil && n == 0:
			// mergo never overrides with a zero value, so unbounded is set directly.
			c.Discovery.MaxItems = 0
		case err == nil && n > 0:
			overrides.Discovery.MaxItems = n
		}
	}

	if n, ok := lookupInt(getenv, EnvMaxScrollAttempts); ok && n > 0 {
		overrides.Discovery.MaxScrollAttempts = n
	}

	if n, ok := lookupInt(getenv, EnvWorkers); ok && n > 0 {
		overrides.Extraction.Workers = n
	}

	if b, ok := lookupBool(getenv, EnvLogoDedup); ok {
		overrides.Dedup.LogoEnabled = &b
	}

	if b, ok := lookupBool(getenv, EnvHeadless); ok {
		overrides.Browser.Headless = &b
	}

	if v, ok := lookup(getenv, EnvOutputDir); ok {
		overrides.Output.Dir = v
	}

	if v, ok := lookup(getenv, EnvLogLevel); ok {
		overrides.Logging.Level = strings.ToLower(v)
	}

	if v, ok := lookup(getenv, EnvCategoryURL); ok {
		overrides.Categories.URL = v
		if c.Categories.Source == CategorySourceNone || c.Categories.Source == "" {
			overrides.Categories.Source = CategorySourceHTTP
		}
	}

	if v, ok := lookup(getenv, EnvCategoryAPIKey); ok {
		overrides.Categories.APIKey = v
	}

	return mergeOverrides(c, overrides)
}

// mergeOverrides merges non-zero fields of src into dst. Pointer flags are
// assigned directly because mergo dereferences them and skips false.
func mergeOverrides(dst *Config, src Config) error {
	logoDedup, headless := src.Dedup.LogoEnabled, src.Browser.Headless
	src.Dedup.LogoEnabled, src.Browser.Headless = nil, nil

	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return err
	}

	if logoDedup != nil {
		v := *logoDedup
		dst.Dedup.LogoEnabled = &v
	}

	if headless != nil {
		v := *headless
		dst.Browser.Headless = &v
	}

	return nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return ErrMissingBaseURL
	}

	base, err := url.Parse(c.Source.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return ErrInvalidBaseURL
	}

	if c.Source.ListingURL == "" {
		return ErrMissingListingURL
	}

	if !strings.Contains(c.Source.DetailPath, "{id}") {
		return ErrMissingDetailPath
	}

	idPattern, err := regexp.Compile(c.Source.IdentifierPattern)
	if err != nil || idPattern.NumSubexp() < 1 {
		return ErrInvalidIdentifierPattern
	}

	if _, err := regexp.Compile(c.Source.LogoPattern); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLogoPattern, err)
	}

	if c.Discovery.MaxItems < 0 {
		return ErrInvalidMaxItems
	}

	if c.Discovery.MaxScrollAttempts < 1 {
		return ErrInvalidScrollAttempts
	}

	if c.Discovery.StallLimit < 1 {
		return ErrInvalidStallLimit
	}

	if c.Extraction.Workers < 1 {
		return ErrInvalidWorkers
	}

	if c.Extraction.LogoPrecedence != PrecedenceListing && c.Extraction.LogoPrecedence != PrecedenceDetail {
		return ErrInvalidPrecedence
	}

	switch c.Browser.Driver {
	case DriverChrome, DriverHTTP:
	case DriverReplay:
		if c.Browser.ReplayDir == "" {
			return ErrMissingReplayDir
		}
	default:
		return ErrInvalidDriver
	}

	if c.Browser.EvalTimeoutMs < 1 {
		return ErrInvalidEvalTimeout
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	n := c.Normalize
	if n.MaxName < 1 || n.MaxShortDescription < 1 || n.MaxFullDescription < 1 || n.MaxCategory < 1 ||
		n.MaxPlatforms < 1 || n.MaxPlatformLength < 1 || n.MaxFeatureTags < 1 || n.MaxFeatureTagLength < 1 {
		return ErrInvalidLimits
	}

	switch c.Categories.Source {
	case CategorySourceNone, "":
	case CategorySourceHTTP:
		if c.Categories.URL == "" {
			return fmt.Errorf("%w: http", ErrMissingCategoryLocation)
		}
	case CategorySourceSQLite, CategorySourceMySQL:
		if c.Categories.DSN == "" {
			return fmt.Errorf("%w: %s", ErrMissingCategoryLocation, c.Categories.Source)
		}
	case CategorySourceFile:
		if c.Categories.Path == "" {
			return fmt.Errorf("%w: file", ErrMissingCategoryLocation)
		}
	default:
		return ErrInvalidCategorySource
	}

	if c.Output.Dir == "" {
		return ErrMissingOutputDir
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

// LogoDedupEnabled reports whether the logo registry enforces uniqueness.
func (c *Config) LogoDedupEnabled() bool {
	return c.Dedup.LogoEnabled == nil || *c.Dedup.LogoEnabled
}

// Headless reports whether the browser runs headless.
func (c *Config) Headless() bool {
	return c.Browser.Headless == nil || *c.Browser.Headless
}

// DetailURL builds the detail page URL for an identifier.
func (c *Config) DetailURL(identifier string) string {
	path := strings.ReplaceAll(c.Source.DetailPath, "{id}", url.PathEscape(identifier))

	return strings.TrimRight(c.Source.BaseURL, "/") + path
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if rp.MaxDelayMs > 0 && int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the timeout duration.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// Millis converts a millisecond setting into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// String returns a string representation of the config.
func (c *Config) String() string {
	maxItems := "unbounded"
	if c.Discovery.MaxItems > 0 {
		maxItems = strconv.Itoa(c.Discovery.MaxItems)
	}

	return fmt.Sprintf(
		"Config{Listing: %s, MaxItems: %s, MaxScrollAttempts: %d, LogoDedup: %t, Driver: %s, Output: %s}",
		c.Source.ListingURL,
		maxItems,
		c.Discovery.MaxScrollAttempts,
		c.LogoDedupEnabled(),
		c.Browser.Driver,
		c.Output.Dir,
	)
}

func lookup(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))

	return v, v != ""
}

func lookupInt(getenv func(string) string, key string) (int, bool) {
	v, ok := lookup(getenv, key)
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}

	return n, true
}

func lookupBool(getenv func(string) string, key string) (bool, bool) {
	v, ok := lookup(getenv, key)
	if !ok {
		return false, false
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}

	return b, true
}
