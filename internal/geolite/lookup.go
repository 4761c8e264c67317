// Package geolite resolves proxy addresses to ISO country codes from a local
// GeoLite2 Country database.
package geolite

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"golang.org/x/sync/singleflight"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

type Lookup struct {
	country *geoip2.Reader

	cache sync.Map
	group singleflight.Group
}

func Open(path string) (*Lookup, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geolite: open %s: %w", path, err)
	}
	return &Lookup{country: reader}, nil
}

func FromBytes(data []byte) (*Lookup, error) {
	reader, err := geoip2.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("geolite: load database: %w", err)
	}
	return &Lookup{country: reader}, nil
}

// CountryCode returns "" for hostnames, private ranges and unknown addresses.
func (l *Lookup) CountryCode(host string) string {
	if l == nil || l.country == nil {
		return ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}

	if cached, ok := l.cache.Load(host); ok {
		return cached.(string)
	}

	result, _, _ := l.group.Do(host, func() (interface{}, error) {
		record, err := l.country.Country(ip)
		if err != nil {
			return "", nil
		}
		code := record.Country.IsoCode
		l.cache.Store(host, code)
		return code, nil
	})
	return result.(string)
}

func (l *Lookup) Enrich(record *domain.ProxyRecord) {
	if record == nil || record.Country != "" {
		return
	}
	host := record.Host
	if record.HostPort != "" {
		if h, _, err := net.SplitHostPort(record.HostPort); err == nil {
			host = h
		}
	}
	record.Country = l.CountryCode(host)
}

func (l *Lookup) Close() error {
	if l == nil || l.country == nil {
		return nil
	}
	return l.country.Close()
}
