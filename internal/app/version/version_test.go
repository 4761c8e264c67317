package version

import "testing"

func TestInfoString(t *testing.T) {
	if got := (Info{BuildVersion: "v1.2.0", BuiltAt: "unknown"}).String(); got != "v1.2.0" {
		t.Fatalf("String() = %q, want v1.2.0", got)
	}
	if got := (Info{BuildVersion: "v1.2.0", BuiltAt: "2026-01-02"}).String(); got != "v1.2.0 (built 2026-01-02)" {
		t.Fatalf("String() = %q", got)
	}
	if Get().BuildVersion == "" {
		t.Fatal("Get returned empty version")
	}
}
