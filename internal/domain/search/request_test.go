package search

import (
	"net/url"
	"reflect"
	"testing"
)

func TestParseRequest(t *testing.T) {
	values, err := url.ParseQuery("q=+books+&d=title&d=status&f=status&s=-title&p=3&_export=&status=open")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}

	req := ParseRequest(values)
	if req.Keywords != "books" {
		t.Errorf("Keywords = %q, want trimmed books", req.Keywords)
	}
	if want := []string{"title", "status"}; !reflect.DeepEqual(req.Display, want) {
		t.Errorf("Display = %v, want %v", req.Display, want)
	}
	if want := []string{"-title"}; !reflect.DeepEqual(req.Sorts, want) {
		t.Errorf("Sorts = %v, want %v", req.Sorts, want)
	}
	if req.Page != 3 {
		t.Errorf("Page = %d, want 3", req.Page)
	}
	if !req.Export {
		t.Error("Export should be set when _export is present")
	}
	if req.Values.Get("status") != "open" {
		t.Error("raw values should be retained for facet selections")
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 1},
		{"abc", 1},
		{"0", 1},
		{"-2", 1},
		{"7", 7},
		{" 7 ", 7},
	}
	for _, tt := range tests {
		if got := parsePage(tt.in); got != tt.want {
			t.Errorf("parsePage(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSavedSearch(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"12"}, "12"},
		{[]string{""}, ""},
		{[]string{"", "12"}, "12"},
		{[]string{"12", "13"}, ""},
		{[]string{"twelve"}, ""},
	}
	for _, tt := range tests {
		if got := parseSavedSearch(tt.in); got != tt.want {
			t.Errorf("parseSavedSearch(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
