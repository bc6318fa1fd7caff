// Package query normalizes querystrings into a canonical form suitable for
// bookmarking and for byte-equality comparison of saved searches.
package query

import (
	"net/url"
	"sort"
	"strings"
)

// orderedKeys are the keys whose repeated values keep their original order
// (display fields, facet selections, sorts).
var orderedKeys = map[string]struct{}{
	"d": {},
	"f": {},
	"s": {},
}

// Normalize returns the canonical querystring: keys sorted, empty values
// dropped, "p=1" dropped, values of non-ordered keys sorted. Normalizing an
// already-normalized string is a no-op.
func Normalize(values url.Values, ignore ...string) string {
	ignored := make(map[string]struct{}, len(ignore))
	for _, k := range ignore {
		ignored[k] = struct{}{}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if _, skip := ignored[k]; !skip {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		vals := nonEmpty(values[key])
		if len(vals) == 0 {
			continue
		}
		if key == "p" && vals[0] == "1" {
			continue
		}
		if _, keepOrder := orderedKeys[key]; !keepOrder {
			vals = append([]string(nil), vals...)
			sort.Strings(vals)
		}
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// NormalizeString parses and normalizes a raw querystring. Unparseable input
// normalizes to the empty string.
func NormalizeString(qs string, ignore ...string) string {
	values, err := url.ParseQuery(qs)
	if err != nil {
		return ""
	}
	return Normalize(values, ignore...)
}

// SameSearch reports whether two querystrings identify the same saved search:
// their canonical forms, minus paging and sort keys, are byte-equal.
func SameSearch(a, b string) bool {
	ignore := []string{"p", "s", "saved_search"}
	return NormalizeString(a, ignore...) == NormalizeString(b, ignore...)
}

func nonEmpty(vals []string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
