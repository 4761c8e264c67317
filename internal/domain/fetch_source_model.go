package domain

import (
	"fmt"
	"strings"
)

type SourceKind string

const (
	// SourceAPI is an authenticated provider API that honours query filters.
	SourceAPI SourceKind = "api"
	// SourceList is an unauthenticated plain-text proxy list.
	SourceList SourceKind = "list"
	// SourceHTML is an unauthenticated page listing proxies in a table.
	SourceHTML SourceKind = "html"
)

func ParseSourceKind(raw string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case SourceAPI, SourceList, SourceHTML:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", raw)
	}
}

type SourceFilters struct {
	Protocol  Protocol `mapstructure:"protocol" json:"protocol,omitempty"`
	Anonymity string   `mapstructure:"anonymity" json:"anonymity,omitempty"`
	Country   string   `mapstructure:"country" json:"country,omitempty"`
	// MaxSpeedMs drops candidates slower than this; 0 disables the filter.
	MaxSpeedMs int `mapstructure:"maxSpeedMs" json:"maxSpeedMs,omitempty"`
	Quantity   int `mapstructure:"quantity" json:"quantity,omitempty"`
}

type FetchSource struct {
	Name         string        `mapstructure:"name" json:"name"`
	Kind         SourceKind    `mapstructure:"kind" json:"kind"`
	Endpoint     string        `mapstructure:"endpoint" json:"endpoint"`
	ProtocolHint Protocol      `mapstructure:"protocol" json:"protocol,omitempty"`
	Priority     int           `mapstructure:"priority" json:"priority"`
	Filters      SourceFilters `mapstructure:"filters" json:"filters"`
}

func (s FetchSource) String() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind) + ":" + s.Endpoint
}
