package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Search modes for the multi-domain session cookie search.
const (
	SearchSequential = "sequential"
	SearchParallel   = "parallel"
)

// Config captures all tunable settings for the Quick Login As MCP server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`
	MCP        MCPConfig        `yaml:"mcp"`
	HTTP       HTTPConfig       `yaml:"http"`
	Mangle     MangleConfig     `yaml:"mangle"`
	Salesforce SalesforceConfig `yaml:"salesforce"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
	// Directory for rotating JSONL traces of message round trips. Empty means recorder.TraceDir.
	TraceDir string `yaml:"trace_dir"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// AutoStart controls whether the server launches/attaches to Chrome at startup.
	AutoStart bool `yaml:"auto_start"`
	// Headless controls whether Chrome runs in headless mode (default: false, login windows are for humans).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Viewport width for new windows (default: 1280).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for new windows (default: 800).
	ViewportHeight int `yaml:"viewport_height"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// HTTPConfig configures the plain HTTP surface (message endpoint + inspector launch URL).
type HTTPConfig struct {
	// Port for the HTTP API. Zero disables it.
	Port int `yaml:"port"`
}

// MangleConfig controls the embedded activity fact engine.
type MangleConfig struct {
	Enable          bool   `yaml:"enable"`
	SchemaPath      string `yaml:"schema_path"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// SalesforceConfig holds the platform-facing knobs.
type SalesforceConfig struct {
	// REST API version used in /services/data/{v}/ paths.
	APIVersion string `yaml:"api_version"`
	// Per-request timeout for REST calls (e.g., "30s").
	RequestTimeout string `yaml:"request_timeout"`
	// SearchMode picks how candidate cookie domains are searched: sequential | parallel.
	SearchMode string `yaml:"search_mode"`
	// Rows per page when listing users from the classic setup page.
	UserPageSize int `yaml:"user_page_size"`
	// CookieFile, when set, is a YAML cookie export read instead of the
	// browser's cookie store, for runs without a browser.
	CookieFile string `yaml:"cookie_file"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "quickloginas-mcp",
			Version:  "0.3.0",
			LogFile:  "quickloginas-mcp.log",
			TraceDir: "data/traces",
		},
		Browser: BrowserConfig{
			AutoStart:                true,
			DefaultNavigationTimeout: "15s",
			ViewportWidth:            1280,
			ViewportHeight:           800,
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		HTTP: HTTPConfig{
			Port: 0,
		},
		Mangle: MangleConfig{
			Enable:          true,
			SchemaPath:      "schemas/loginas.mg",
			FactBufferLimit: 1024,
		},
		Salesforce: SalesforceConfig{
			APIVersion:     "v62.0",
			RequestTimeout: "30s",
			SearchMode:     SearchSequential,
			UserPageSize:   1000,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.AutoStart {
		if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
			return errors.New("browser.debugger_url or browser.launch must be provided")
		}
	}
	if c.Salesforce.APIVersion != "" && !strings.HasPrefix(c.Salesforce.APIVersion, "v") {
		return fmt.Errorf("salesforce.api_version must look like v62.0, got %q", c.Salesforce.APIVersion)
	}
	switch c.Salesforce.SearchMode {
	case "", SearchSequential, SearchParallel:
	default:
		return fmt.Errorf("salesforce.search_mode must be %q or %q, got %q", SearchSequential, SearchParallel, c.Salesforce.SearchMode)
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.DefaultNavigationTimeout == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(b.DefaultNavigationTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// IsHeadless returns whether Chrome should run in headless mode (default: false).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1280
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 800
	}
	return b.ViewportHeight
}

// GetAPIVersion returns the REST API version with a sane default.
func (s SalesforceConfig) GetAPIVersion() string {
	if s.APIVersion == "" {
		return "v62.0"
	}
	return s.APIVersion
}

// GetRequestTimeout returns the parsed REST timeout with a sane default.
func (s SalesforceConfig) GetRequestTimeout() time.Duration {
	if s.RequestTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// IsParallelSearch reports whether candidate domains are searched with a concurrent join.
func (s SalesforceConfig) IsParallelSearch() bool {
	return s.SearchMode == SearchParallel
}

// GetUserPageSize returns the user listing page size with a sane default.
func (s SalesforceConfig) GetUserPageSize() int {
	if s.UserPageSize <= 0 {
		return 1000
	}
	return s.UserPageSize
}
