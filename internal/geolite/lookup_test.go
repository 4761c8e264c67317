package geolite

import (
	"path/filepath"
	"testing"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

func TestOpenMissingDatabase(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestFromBytesRejectsGarbage(t *testing.T) {
	if _, err := FromBytes([]byte("not a maxmind database")); err == nil {
		t.Fatal("expected error for invalid database bytes")
	}
}

func TestNilLookupIsNoop(t *testing.T) {
	var lookup *Lookup

	if got := lookup.CountryCode("8.8.8.8"); got != "" {
		t.Fatalf("nil lookup returned %q, want empty", got)
	}

	record := &domain.ProxyRecord{Host: "8.8.8.8", Port: 80}
	lookup.Enrich(record)
	if record.Country != "" {
		t.Fatalf("nil lookup set country %q", record.Country)
	}
	if err := lookup.Close(); err != nil {
		t.Fatalf("Close on nil lookup returned %v", err)
	}
}
