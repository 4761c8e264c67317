package support

import (
	"reflect"
	"testing"
)

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{"http", "http://example.com", true},
		{"https", "https://example.com/path", true},
		{"missing scheme", "example.com", false},
		{"unsupported scheme", "ftp://example.com", false},
		{"invalid", "://missing-scheme", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidURL(tt.url); got != tt.valid {
				t.Fatalf("IsValidURL(%q) = %t, want %t", tt.url, got, tt.valid)
			}
		})
	}
}

func TestTargetLinesKeepsInvalidEntries(t *testing.T) {
	got := TargetLines("https://example.com\n\n# comment\n  not-a-url  \n")
	want := []string{"https://example.com", "not-a-url"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TargetLines returned %v, want %v", got, want)
	}
}
