// Package fetcher implements the proxy sources the pool manager refetches
// from: authenticated provider APIs, plain-text lists and HTML tables.
package fetcher

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

const (
	defaultTimeout        = 20 * time.Second
	defaultAPIKeyParam    = "api_key"
	defaultEmptyRetryWait = time.Second
)

// Enricher fills optional metadata on a record before it is pooled.
type Enricher interface {
	Enrich(record *domain.ProxyRecord)
}

type Options struct {
	APIKey      string
	APIKeyParam string
	// EmptyRetries is how many times an API provider is re-queried when
	// every candidate was filtered out.
	EmptyRetries   int
	EmptyRetryWait time.Duration
	Timeout        time.Duration
	UserAgent      string
	Enricher       Enricher
}

func (o Options) withDefaults() Options {
	if o.APIKeyParam == "" {
		o.APIKeyParam = defaultAPIKeyParam
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	// A negative wait re-queries immediately.
	if o.EmptyRetryWait == 0 {
		o.EmptyRetryWait = defaultEmptyRetryWait
	}
	if o.UserAgent == "" {
		o.UserAgent = support.DefaultUserAgents()[0]
	}
	return o
}

// New returns one fetcher per source kind.
func New(opts Options) map[domain.SourceKind]proxypool.Fetcher {
	opts = opts.withDefaults()
	return map[domain.SourceKind]proxypool.Fetcher{
		domain.SourceAPI:  NewAPIFetcher(opts),
		domain.SourceList: NewListFetcher(opts),
		domain.SourceHTML: NewHTMLFetcher(opts),
	}
}

// finalize tags, enriches, validates and filters raw candidates.
func finalize(records []*domain.ProxyRecord, source domain.FetchSource, exclude proxypool.Excluder, enricher Enricher) []*domain.ProxyRecord {
	valid := make([]*domain.ProxyRecord, 0, len(records))
	for _, record := range records {
		if record.Source == "" {
			record.Source = source.String()
		}
		if record.Protocol == "" {
			record.Protocol = source.ProtocolHint
		}
		if record.Protocol == "" {
			record.Protocol = domain.ProtocolHTTP
		}
		if err := record.Validate(); err != nil {
			log.Debug("skipping invalid proxy candidate", "source", source.String(), "error", err)
			continue
		}
		if enricher != nil && record.Country == "" {
			enricher.Enrich(record)
		}
		if !matchesFilters(record, source.Filters) {
			continue
		}
		valid = append(valid, record)
	}

	unused := proxypool.FilterUnused(valid, exclude)
	if q := source.Filters.Quantity; q > 0 && len(unused) > q {
		unused = unused[:q]
	}
	return unused
}

func matchesFilters(record *domain.ProxyRecord, filters domain.SourceFilters) bool {
	if filters.Protocol != "" && record.Protocol != filters.Protocol {
		return false
	}
	if filters.Anonymity != "" && !strings.EqualFold(record.Anonymity, filters.Anonymity) {
		return false
	}
	if filters.Country != "" && !strings.EqualFold(record.Country, filters.Country) {
		return false
	}
	if filters.MaxSpeedMs > 0 && record.Speed > time.Duration(filters.MaxSpeedMs)*time.Millisecond {
		return false
	}
	return true
}
