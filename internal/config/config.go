package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the facetd API configuration.
type Config struct {
	HTTP          HTTPConfig    `yaml:"http"`
	Elasticsearch ESConfig      `yaml:"elasticsearch"`
	Redis         RedisConfig   `yaml:"redis"`
	Search        SearchConfig  `yaml:"search"`
	Schema        SchemaConfig  `yaml:"schema"`
	Facets        []FacetConfig `yaml:"facets"`
	Columns       ColumnsConfig `yaml:"columns"`
	Auth          AuthConfig    `yaml:"auth"`
	Logging       LoggingConfig `yaml:"logging"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ESConfig holds Elasticsearch connection settings.
type ESConfig struct {
	URLs     []string `yaml:"urls"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Index    string   `yaml:"index"`
	Sniff    bool     `yaml:"sniff"`
}

// RedisConfig holds saved-search store connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SearchConfig holds query assembly and rendering settings.
type SearchConfig struct {
	PageSize        int      `yaml:"page_size"`
	DefaultOperator string   `yaml:"default_operator"` // AND, OR
	QueryType       string   `yaml:"query_type"`       // query_string, simple_query_string
	DefaultSorts    []string `yaml:"default_sorts"`
	DefaultDisplay  []string `yaml:"default_display"`
	ExportName      string   `yaml:"export_name"`

	HighlightEnabled bool     `yaml:"highlight_enabled"`
	HighlightFields  []string `yaml:"highlight_fields"`
	HighlightEncoder string   `yaml:"highlight_encoder"` // "", html

	FormatterCacheSize int `yaml:"formatter_cache_size"`
}

// SchemaConfig holds per-field overrides for schema introspection.
type SchemaConfig struct {
	DefaultAnalyzer string            `yaml:"default_analyzer"`
	Labels          map[string]string `yaml:"labels"`
	SortKeys        map[string]string `yaml:"sort_keys"`
	Highlights      map[string]string `yaml:"highlights"`
	Searchable      []string          `yaml:"searchable"`
}

// FacetConfig declares one facet.
type FacetConfig struct {
	Field string `yaml:"field"`
	Label string `yaml:"label"`
	Kind  string `yaml:"kind"` // terms, range, date_histogram

	// Terms settings.
	Size int `yaml:"size"`

	// Range settings.
	Ranges []RangeConfig `yaml:"ranges"`

	// Date-histogram settings.
	Interval string `yaml:"interval"` // year, month, day

	// Initial values selected when the request carries none.
	Initial []string `yaml:"initial"`
}

// RangeConfig declares one keyed bucket of a range facet. Nil bounds are
// unbounded.
type RangeConfig struct {
	Key  string   `yaml:"key"`
	From *float64 `yaml:"from"`
	To   *float64 `yaml:"to"`
}

// ColumnsConfig declares the view's column list.
type ColumnsConfig struct {
	// Fields is the explicit column list; empty means every schema field.
	Fields []ColumnConfig `yaml:"fields"`
	// Exclude drops fields from generated columns.
	Exclude []string `yaml:"exclude"`
	// Required pins fields into the display list at fixed positions.
	Required []RequiredConfig `yaml:"required"`
}

// ColumnConfig declares one column. Only Field is required; the rest is
// derived from the schema when empty.
type ColumnConfig struct {
	Field       string `yaml:"field"`
	Label       string `yaml:"label"`
	SortKey     string `yaml:"sort_key"`
	Highlight   string `yaml:"highlight"`
	Export      *bool  `yaml:"export"`
	ExportField string `yaml:"export_field"`
}

// RequiredConfig pins one field to a display position.
type RequiredConfig struct {
	Field    string `yaml:"field"`
	Position int    `yaml:"position"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// CSV exports stream for a while.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 10
	}
	if c.Search.DefaultOperator == "" {
		c.Search.DefaultOperator = "AND"
	}
	if c.Search.QueryType == "" {
		c.Search.QueryType = "query_string"
	}
	if c.Search.ExportName == "" {
		c.Search.ExportName = "export"
	}
	if c.Search.FormatterCacheSize <= 0 {
		c.Search.FormatterCacheSize = 512
	}
	if c.Schema.DefaultAnalyzer == "" {
		c.Schema.DefaultAnalyzer = "standard"
	}
	for i := range c.Facets {
		if c.Facets[i].Kind == "" {
			c.Facets[i].Kind = "terms"
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Elasticsearch.URLs) == 0 {
		return fmt.Errorf("elasticsearch.urls is required")
	}
	if c.Elasticsearch.Index == "" {
		return fmt.Errorf("elasticsearch.index is required")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	switch c.Search.DefaultOperator {
	case "AND", "OR":
	default:
		return fmt.Errorf("search.default_operator must be AND or OR, got %q", c.Search.DefaultOperator)
	}
	switch c.Search.QueryType {
	case "query_string", "simple_query_string":
	default:
		return fmt.Errorf("search.query_type must be query_string or simple_query_string, got %q", c.Search.QueryType)
	}
	switch c.Search.HighlightEncoder {
	case "", "default", "html":
	default:
		return fmt.Errorf("search.highlight_encoder must be default or html, got %q", c.Search.HighlightEncoder)
	}
	for i, f := range c.Facets {
		if f.Field == "" {
			return fmt.Errorf("facets[%d].field is required", i)
		}
		switch f.Kind {
		case "terms", "range", "date_histogram":
		default:
			return fmt.Errorf("facets[%d].kind must be terms, range, or date_histogram, got %q", i, f.Kind)
		}
		if f.Kind == "range" && len(f.Ranges) == 0 {
			return fmt.Errorf("facets[%d]: range facet needs at least one range", i)
		}
		for j, r := range f.Ranges {
			if r.From == nil && r.To == nil {
				return fmt.Errorf("facets[%d].ranges[%d]: range needs at least one bound", i, j)
			}
		}
		switch f.Interval {
		case "", "year", "month", "day":
		default:
			return fmt.Errorf("facets[%d].interval must be year, month, or day, got %q", i, f.Interval)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
