package column

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openfacet/facetd/internal/domain/schema"
)

// Formatter renders one field value for display or export.
type Formatter func(interface{}) string

// FormatterCache caches resolved per-field formatters. Shared process-wide
// and safe for concurrent use; recomputing an entry is harmless, so
// last-writer-wins is fine.
type FormatterCache struct {
	cache *lru.Cache[string, Formatter]
}

const defaultCacheSize = 512

// NewFormatterCache creates a formatter cache. Size <= 0 uses the default.
func NewFormatterCache(size int) (*FormatterCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, Formatter](size)
	if err != nil {
		return nil, fmt.Errorf("formatter cache: %w", err)
	}
	return &FormatterCache{cache: c}, nil
}

// For returns the formatter for a field, computing and caching it on miss.
func (fc *FormatterCache) For(field string, kind schema.Kind) Formatter {
	if f, ok := fc.cache.Get(field); ok {
		return f
	}
	f := formatterFor(kind)
	fc.cache.Add(field, f)
	return f
}

func formatterFor(kind schema.Kind) Formatter {
	switch kind {
	case schema.Date:
		return formatDate
	case schema.Number:
		return formatNumber
	default:
		return formatAny
	}
}

// formatDate renders index date strings as "2006-01-02 15:04" when they carry
// a time component, date-only otherwise. Unparseable values pass through.
func formatDate(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return formatAny(v)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04")
	}
	return s
}

func formatNumber(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return formatAny(v)
}

// formatAny renders scalars directly and flattens objects to their JSON form.
func formatAny(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case map[string]interface{}:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", value)
	}
}
