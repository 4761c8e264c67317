package fetcher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

// ListFetcher downloads a plain-text list. A repeated request serves the
// same list, so an empty result is reported immediately and the manager
// moves on to another source.
type ListFetcher struct {
	client *resty.Client
	opts   Options
}

func NewListFetcher(opts Options) *ListFetcher {
	opts = opts.withDefaults()
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	return &ListFetcher{client: client, opts: opts}
}

func (f *ListFetcher) Fetch(ctx context.Context, source domain.FetchSource, exclude proxypool.Excluder) (*proxypool.Pool, error) {
	resp, err := f.client.R().SetContext(ctx).Get(source.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", proxypool.ErrSourceUnavailable, source, err)
	}
	if code := resp.StatusCode(); code >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s returned status %d", proxypool.ErrSourceUnavailable, source, code)
	}

	candidates := parseList(resp.String(), source)
	unused := finalize(candidates, source, exclude, f.opts.Enricher)
	if len(unused) == 0 {
		return nil, fmt.Errorf("%w: %s listed %d candidates", proxypool.ErrNoCandidatesAfterFilter, source, len(candidates))
	}

	return proxypool.NewPool(source.String(), unused), nil
}

// parseList reads one proxy per line and falls back to scanning for ip:port
// pairs when the body is not line oriented.
func parseList(body string, source domain.FetchSource) []*domain.ProxyRecord {
	records := support.ParseTextToProxies(body, source.ProtocolHint, source.String())
	if len(records) > 0 {
		return records
	}

	for _, address := range support.FindProxyAddresses(body) {
		records = append(records, &domain.ProxyRecord{
			Protocol: source.ProtocolHint,
			HostPort: address,
			Source:   source.String(),
		})
	}
	return records
}
