package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

type apiProxy struct {
	IP        string  `json:"ip"`
	Host      string  `json:"host"`
	Port      apiPort `json:"port"`
	Proxy     string  `json:"proxy"`
	Protocol  string  `json:"protocol"`
	Country   string  `json:"country"`
	Anonymity string  `json:"anonymity"`
	SpeedMs   float64 `json:"speed"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
}

type apiResponse struct {
	Data    []apiProxy `json:"data"`
	Proxies []apiProxy `json:"proxies"`
}

// apiPort accepts both 8080 and "8080".
type apiPort int

func (p *apiPort) UnmarshalJSON(raw []byte) error {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		*p = apiPort(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = apiPort(n)
	return nil
}

// APIFetcher queries an authenticated provider that accepts filter
// parameters. Because each query can return a different selection, an
// all-filtered response is retried against the same provider.
type APIFetcher struct {
	client *resty.Client
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewAPIFetcher(opts Options) *APIFetcher {
	opts = opts.withDefaults()
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json")

	return &APIFetcher{client: client, opts: opts, sleep: support.SleepContext}
}

func (f *APIFetcher) Fetch(ctx context.Context, source domain.FetchSource, exclude proxypool.Excluder) (*proxypool.Pool, error) {
	if f.opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s requires an API key", proxypool.ErrAuthenticationMissing, source)
	}

	for attempt := 0; ; attempt++ {
		candidates, err := f.query(ctx, source)
		if err != nil {
			return nil, err
		}

		unused := finalize(candidates, source, exclude, f.opts.Enricher)
		if len(unused) > 0 {
			return proxypool.NewPool(source.String(), unused), nil
		}

		if attempt >= f.opts.EmptyRetries {
			return nil, fmt.Errorf("%w: %s returned %d candidates, none usable after %d queries",
				proxypool.ErrNoCandidatesAfterFilter, source, len(candidates), attempt+1)
		}

		log.Debug("provider returned only used or filtered proxies; querying again", "source", source.String(), "attempt", attempt+1)
		if err := f.sleep(ctx, f.opts.EmptyRetryWait); err != nil {
			return nil, fmt.Errorf("%w: %v", proxypool.ErrSourceUnavailable, err)
		}
	}
}

func (f *APIFetcher) query(ctx context.Context, source domain.FetchSource) ([]*domain.ProxyRecord, error) {
	params := map[string]string{f.opts.APIKeyParam: f.opts.APIKey}
	filters := source.Filters
	if filters.Protocol != "" {
		params["protocol"] = string(filters.Protocol)
	}
	if filters.Anonymity != "" {
		params["anonymity"] = filters.Anonymity
	}
	if filters.Country != "" {
		params["country"] = filters.Country
	}
	if filters.MaxSpeedMs > 0 {
		params["max_speed"] = strconv.Itoa(filters.MaxSpeedMs)
	}
	if filters.Quantity > 0 {
		params["limit"] = strconv.Itoa(filters.Quantity)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(source.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", proxypool.ErrSourceUnavailable, source, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s rejected the API key (status %d)", proxypool.ErrAuthenticationMissing, source, code)
	case code >= http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s returned status %d", proxypool.ErrSourceUnavailable, source, code)
	}

	var body apiResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %v", proxypool.ErrSourceUnavailable, source, err)
	}

	entries := body.Data
	if len(entries) == 0 {
		entries = body.Proxies
	}

	records := make([]*domain.ProxyRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.toRecord(source))
	}
	return records, nil
}

func (p apiProxy) toRecord(source domain.FetchSource) *domain.ProxyRecord {
	record := &domain.ProxyRecord{
		Username:  p.Username,
		Password:  p.Password,
		Source:    source.String(),
		Country:   p.Country,
		Anonymity: p.Anonymity,
		Speed:     time.Duration(p.SpeedMs * float64(time.Millisecond)),
	}

	if protocol, err := domain.ParseProtocol(p.Protocol); err == nil {
		record.Protocol = protocol
	}

	host := p.IP
	if host == "" {
		host = p.Host
	}
	switch {
	case host != "" && p.Port > 0 && p.Port <= 65535:
		record.Host = host
		record.Port = uint16(p.Port)
	case p.Proxy != "":
		record.HostPort = p.Proxy
	default:
		record.HostPort = net.JoinHostPort(host, strconv.Itoa(int(p.Port)))
	}
	return record
}
