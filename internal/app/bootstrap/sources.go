package bootstrap

import (
	"context"
	"sort"
	"time"

	"github.com/NoorahSmith/ViewCounter-d/internal/config"
	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
)

// SourceProbe is the outcome of fetching one source once.
type SourceProbe struct {
	Source     domain.FetchSource
	Candidates int
	Elapsed    time.Duration
	Err        error
}

// ProbeSources fetches every configured source once, in priority order,
// against an empty registry.
func ProbeSources(ctx context.Context, cfg config.Config) ([]SourceProbe, error) {
	fetchers, closeFetchers, err := BuildFetchers(cfg)
	if err != nil {
		return nil, err
	}
	defer closeFetchers()

	return probe(ctx, fetchers, cfg.Proxy.Sources), nil
}

func probe(ctx context.Context, fetchers map[domain.SourceKind]proxypool.Fetcher, sources []domain.FetchSource) []SourceProbe {
	ordered := append([]domain.FetchSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	registry := proxypool.NewMemoryRegistry()
	probes := make([]SourceProbe, 0, len(ordered))
	for _, source := range ordered {
		started := time.Now()
		result := SourceProbe{Source: source}

		f, ok := fetchers[source.Kind]
		if !ok {
			result.Err = proxypool.ErrSourceUnavailable
		} else if pool, err := f.Fetch(ctx, source, registry); err != nil {
			result.Err = err
		} else {
			result.Candidates = pool.Size()
		}

		result.Elapsed = time.Since(started)
		probes = append(probes, result)
	}
	return probes
}
