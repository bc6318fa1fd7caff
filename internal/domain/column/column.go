// Package column models displayable fields: labels, sort keys, highlight
// targets, export behavior, and per-request visibility resolution.
package column

import (
	"sort"
	"strings"

	"github.com/openfacet/facetd/internal/domain/schema"
)

// Column is the display descriptor for one document field. Visible is bound
// per request and never shared across requests.
type Column struct {
	Field       string
	Label       string
	SortKey     string // "" = unsortable
	Highlight   string // "" = no highlight target
	Export      bool
	ExportField string // alternate export source; "" = Field
	Visible     bool
}

// Required pins a field into the display list at a fixed position.
type Required struct {
	Field    string
	Position int
}

// Options configures column resolution for one view.
type Options struct {
	// Columns is the explicit column list. Entries with only Field set are
	// derived from the schema; fully specified entries pass through.
	Columns []Column
	// Exclude drops fields from generated columns.
	Exclude []string
	// Required fields are always displayed at their configured positions.
	Required []Required
}

// Resolver builds per-request column lists from the schema and view options.
// Read-only after construction; safe for concurrent use.
type Resolver struct {
	intros     *schema.Introspector
	mapping    *schema.Mapping
	opts       Options
	exclude    map[string]struct{}
	formatters *FormatterCache
}

// NewResolver creates a column resolver.
func NewResolver(in *schema.Introspector, m *schema.Mapping, opts Options, cache *FormatterCache) *Resolver {
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, f := range opts.Exclude {
		exclude[f] = struct{}{}
	}
	return &Resolver{intros: in, mapping: m, opts: opts, exclude: exclude, formatters: cache}
}

// Make derives a column for a field from the schema.
func (r *Resolver) Make(field string) Column {
	return Column{
		Field:     field,
		Label:     r.intros.Label(field),
		SortKey:   r.intros.SortKey(field),
		Highlight: r.intros.HighlightTarget(field),
		Export:    true,
	}
}

// RequiredFields returns the force-displayed field names.
func (r *Resolver) RequiredFields() []string {
	fields := make([]string, len(r.opts.Required))
	for i, req := range r.opts.Required {
		fields[i] = req.Field
	}
	return fields
}

// DisplayFields computes the effective display list: the requested fields (or
// defaults when none requested) minus required fields, with required fields
// re-inserted at their configured positions.
func (r *Resolver) DisplayFields(requested, defaults []string) []string {
	base := requested
	if len(base) == 0 {
		base = defaults
	}
	if len(base) == 0 {
		base = r.mapping.FieldNames()
	}

	required := make(map[string]struct{}, len(r.opts.Required))
	for _, req := range r.opts.Required {
		required[req.Field] = struct{}{}
	}

	display := make([]string, 0, len(base)+len(r.opts.Required))
	for _, f := range base {
		if _, ok := required[f]; !ok {
			display = append(display, f)
		}
	}
	for _, req := range r.opts.Required {
		pos := req.Position
		if pos < 0 {
			pos = 0
		}
		if pos > len(display) {
			pos = len(display)
		}
		display = append(display[:pos], append([]string{req.Field}, display[pos:]...)...)
	}
	return display
}

// Resolve builds the ordered column list for one request: every schema field
// (minus excluded) or the explicit configured list, each bound with
// Visible = field ∈ display. Visible columns come first in display order,
// hidden columns follow in label order.
func (r *Resolver) Resolve(display []string) []Column {
	var columns []Column
	if len(r.opts.Columns) == 0 {
		for _, name := range r.mapping.FieldNames() {
			if _, skip := r.exclude[name]; skip {
				continue
			}
			columns = append(columns, r.Make(name))
		}
	} else {
		for _, c := range r.opts.Columns {
			if _, skip := r.exclude[c.Field]; skip {
				continue
			}
			if isBareField(c) {
				columns = append(columns, r.Make(c.Field))
			} else {
				columns = append(columns, c)
			}
		}
	}

	position := make(map[string]int, len(display))
	for i, f := range display {
		position[f] = i
	}

	var visible, hidden []Column
	for _, c := range columns {
		if _, ok := position[c.Field]; ok {
			c.Visible = true
			visible = append(visible, c)
		} else {
			c.Visible = false
			hidden = append(hidden, c)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return position[visible[i].Field] < position[visible[j].Field]
	})
	sort.SliceStable(hidden, func(i, j int) bool {
		return hidden[i].Label < hidden[j].Label
	})
	return append(visible, hidden...)
}

// isBareField reports whether the configured entry carries only a field name
// and should be derived from the schema.
func isBareField(c Column) bool {
	return c.Label == "" && c.SortKey == "" && c.Highlight == "" && c.ExportField == ""
}

// ExportValue renders the column's value from a document source for CSV
// export. Multi-values are joined with "; "; object values are flattened.
func (r *Resolver) ExportValue(c Column, source map[string]interface{}) string {
	if !c.Export {
		return ""
	}
	field := c.ExportField
	if field == "" {
		field = c.Field
	}
	value := dig(source, field)
	if value == nil {
		return ""
	}

	format := r.formatters.For(field, r.fieldKind(field))
	if list, ok := value.([]interface{}); ok {
		parts := make([]string, len(list))
		for i, v := range list {
			parts[i] = format(v)
		}
		return strings.Join(parts, "; ")
	}
	return format(value)
}

func (r *Resolver) fieldKind(field string) schema.Kind {
	root := field
	if i := strings.IndexByte(field, '.'); i >= 0 {
		root = field[:i]
	}
	if f, ok := r.mapping.Field(root); ok {
		if root != field && !f.Kind.IsContainer() {
			return schema.Keyword
		}
		if root != field {
			return kindAt(f, field[len(root)+1:])
		}
		return f.Kind
	}
	return schema.Keyword
}

func kindAt(f schema.Field, path string) schema.Kind {
	head := path
	rest := ""
	if i := strings.IndexByte(path, '.'); i >= 0 {
		head, rest = path[:i], path[i+1:]
	}
	for _, sub := range f.Properties {
		if sub.Name != head {
			continue
		}
		if rest == "" {
			return sub.Kind
		}
		return kindAt(sub, rest)
	}
	return schema.Keyword
}

// dig walks a dot path through nested maps. List-of-map steps collect the
// sub-values into a list.
func dig(source map[string]interface{}, path string) interface{} {
	head := path
	rest := ""
	if i := strings.IndexByte(path, '.'); i >= 0 {
		head, rest = path[:i], path[i+1:]
	}
	value, ok := source[head]
	if !ok {
		return nil
	}
	if rest == "" {
		return value
	}
	switch v := value.(type) {
	case map[string]interface{}:
		return dig(v, rest)
	case []interface{}:
		var out []interface{}
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if sub := dig(m, rest); sub != nil {
					out = append(out, sub)
				}
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// NextSort returns the sort token for clicking this column's header given the
// current sort token: re-clicking toggles direction, a new column starts
// ascending. Returns "" for unsortable columns.
func NextSort(c Column, current string) string {
	if c.SortKey == "" {
		return ""
	}
	if strings.TrimPrefix(current, "-") == c.Field {
		if strings.HasPrefix(current, "-") {
			return c.Field
		}
		return "-" + c.Field
	}
	return c.Field
}
