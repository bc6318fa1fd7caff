// Package search models the ephemeral per-call search request decoded from
// query parameters. Requests are built fresh per call and never persisted
// directly.
package search

import (
	"net/url"
	"strconv"
	"strings"
)

// Request carries one search call's parameters.
type Request struct {
	Keywords       string   // q
	Display        []string // d, order-significant
	SelectedFacets []string // f, order-significant
	Sorts          []string // s, "-" prefix = descending
	Page           int      // p, 1-based
	Export         bool     // _export present
	FacetLookup    string   // _facet: single-facet typeahead target
	FacetPattern   string   // _query: typeahead substring
	SavedSearch    string   // saved_search numeric id, "" when absent/invalid

	// Values retains the raw parameters for facet selections and
	// querystring normalization.
	Values url.Values
}

// ParseRequest decodes query parameters into a Request. Non-numeric or
// missing page numbers become page 1.
func ParseRequest(values url.Values) Request {
	_, export := values["_export"]
	return Request{
		Keywords:       strings.TrimSpace(values.Get("q")),
		Display:        values["d"],
		SelectedFacets: values["f"],
		Sorts:          values["s"],
		Page:           parsePage(values.Get("p")),
		Export:         export,
		FacetLookup:    values.Get("_facet"),
		FacetPattern:   strings.TrimSpace(values.Get("_query")),
		SavedSearch:    parseSavedSearch(values["saved_search"]),
		Values:         values,
	}
}

func parsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// parseSavedSearch accepts exactly one non-empty numeric value.
func parseSavedSearch(raw []string) string {
	var vals []string
	for _, v := range raw {
		if v != "" {
			vals = append(vals, v)
		}
	}
	if len(vals) != 1 {
		return ""
	}
	if _, err := strconv.ParseUint(vals[0], 10, 64); err != nil {
		return ""
	}
	return vals[0]
}
