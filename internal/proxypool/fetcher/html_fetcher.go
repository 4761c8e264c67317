package fetcher

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
)

var anonymityLevels = []string{"elite", "anonymous", "transparent"}

// HTMLFetcher scrapes a page that lists proxies as table rows. Like list
// sources it never re-requests on an empty result.
type HTMLFetcher struct {
	opts Options
}

func NewHTMLFetcher(opts Options) *HTMLFetcher {
	return &HTMLFetcher{opts: opts.withDefaults()}
}

func (f *HTMLFetcher) Fetch(ctx context.Context, source domain.FetchSource, exclude proxypool.Excluder) (*proxypool.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", proxypool.ErrSourceUnavailable, source, err)
	}

	c := colly.NewCollector(colly.UserAgent(f.opts.UserAgent), colly.StdlibContext(ctx))
	c.SetRequestTimeout(f.opts.Timeout)

	var (
		candidates []*domain.ProxyRecord
		body       string
		status     int
	)

	c.OnHTML("tr", func(e *colly.HTMLElement) {
		cells := e.DOM.Find("td").Map(func(_ int, s *goquery.Selection) string {
			return strings.TrimSpace(s.Text())
		})
		if record := recordFromCells(cells, source); record != nil {
			candidates = append(candidates, record)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(source.Endpoint); err != nil {
		if status != 0 {
			return nil, fmt.Errorf("%w: %s returned status %d", proxypool.ErrSourceUnavailable, source, status)
		}
		return nil, fmt.Errorf("%w: %s: %v", proxypool.ErrSourceUnavailable, source, err)
	}

	if len(candidates) == 0 {
		candidates = parseList(body, source)
	}

	unused := finalize(candidates, source, exclude, f.opts.Enricher)
	if len(unused) == 0 {
		return nil, fmt.Errorf("%w: %s listed %d candidates", proxypool.ErrNoCandidatesAfterFilter, source, len(candidates))
	}

	return proxypool.NewPool(source.String(), unused), nil
}

// recordFromCells expects the address in the first cell and the port in the
// second, or a joined ip:port in the first. Protocol, country code and
// anonymity are picked up from any later cell that looks like one; the
// source's protocol hint applies when no cell names a protocol.
func recordFromCells(cells []string, source domain.FetchSource) *domain.ProxyRecord {
	if len(cells) == 0 {
		return nil
	}

	record := &domain.ProxyRecord{Source: source.String()}
	rest := cells[1:]

	if host, port, err := net.SplitHostPort(cells[0]); err == nil && net.ParseIP(host) != nil {
		record.HostPort = net.JoinHostPort(host, port)
	} else {
		if net.ParseIP(cells[0]) == nil || len(cells) < 2 {
			return nil
		}
		port, err := strconv.Atoi(cells[1])
		if err != nil || port < 1 || port > 65535 {
			return nil
		}
		record.Host = cells[0]
		record.Port = uint16(port)
		rest = cells[2:]
	}

	for _, cell := range rest {
		lower := strings.ToLower(cell)
		if protocol, err := domain.ParseProtocol(lower); err == nil && record.Protocol == "" {
			record.Protocol = protocol
			continue
		}
		if record.Country == "" && isCountryCode(cell) {
			record.Country = cell
			continue
		}
		for _, level := range anonymityLevels {
			if strings.HasPrefix(lower, level) {
				record.Anonymity = level
			}
		}
	}

	return record
}

func isCountryCode(cell string) bool {
	if len(cell) != 2 {
		return false
	}
	for _, r := range cell {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
