package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const minimalConfig = `
http:
  port: 8080
elasticsearch:
  urls: ["http://localhost:9200"]
  index: books
redis:
  addrs: ["localhost:6379"]
`

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, minimalConfig)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.PageSize != 10 {
		t.Errorf("page size = %d, want default 10", cfg.Search.PageSize)
	}
	if cfg.Search.DefaultOperator != "AND" || cfg.Search.QueryType != "query_string" {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
	if cfg.Schema.DefaultAnalyzer != "standard" {
		t.Errorf("analyzer = %q, want standard", cfg.Schema.DefaultAnalyzer)
	}
	if cfg.HTTP.WriteTimeoutSec != 300 {
		t.Errorf("write timeout = %d, want export-friendly 300", cfg.HTTP.WriteTimeoutSec)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("ES_PASSWORD", "hunter2")
	writeConfig(t, `
http:
  port: 8080
elasticsearch:
  urls: ["${ES_URL:-http://localhost:9200}"]
  index: books
  password: ${ES_PASSWORD}
redis:
  addrs: ["localhost:6379"]
`)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Elasticsearch.Password != "hunter2" {
		t.Errorf("password = %q, want expanded env value", cfg.Elasticsearch.Password)
	}
	if cfg.Elasticsearch.URLs[0] != "http://localhost:9200" {
		t.Errorf("url = %q, want fallback default", cfg.Elasticsearch.URLs[0])
	}
}

func TestLoad_FacetSections(t *testing.T) {
	writeConfig(t, minimalConfig+`
facets:
  - field: status
    label: Status
  - field: page_count
    label: Pages
    kind: range
    ranges:
      - {key: short, to: 200}
      - {key: long, from: 200}
  - field: published_on
    label: Published
    kind: date_histogram
    interval: month
`)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Facets) != 3 {
		t.Fatalf("got %d facets", len(cfg.Facets))
	}
	if cfg.Facets[0].Kind != "terms" {
		t.Errorf("kind = %q, want default terms", cfg.Facets[0].Kind)
	}
	ranges := cfg.Facets[1].Ranges
	if len(ranges) != 2 || ranges[0].From != nil || ranges[0].To == nil || *ranges[0].To != 200 {
		t.Errorf("ranges = %+v", ranges)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing port", strings.Replace(minimalConfig, "port: 8080", "port: 0", 1), "http.port"},
		{"missing index", strings.Replace(minimalConfig, "index: books", "index: \"\"", 1), "elasticsearch.index"},
		{"bad operator", minimalConfig + "search:\n  default_operator: XOR\n", "default_operator"},
		{"bad facet kind", minimalConfig + "facets:\n  - field: f\n    kind: fancy\n", "kind"},
		{"range without ranges", minimalConfig + "facets:\n  - field: f\n    kind: range\n", "range"},
		{"range without bounds", minimalConfig + "facets:\n  - field: f\n    kind: range\n    ranges:\n      - {key: all}\n", "bound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.body)
			_, err := Load("test")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
