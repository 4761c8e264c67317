package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NoorahSmith/ViewCounter-d/internal/config"
	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/executor"
	"github.com/NoorahSmith/ViewCounter-d/internal/jobs/dispatch"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
)

func baseConfig(targets ...string) config.Config {
	var cfg config.Config
	cfg.Targets = targets
	cfg.TotalUnits = 3
	cfg.Concurrency = 2
	cfg.PerUnitTimeout = 5 * time.Second
	cfg.Executor.Kind = config.ExecutorHTTP
	cfg.Proxy.Mode = config.ProxyModeNone
	cfg.Proxy.Rotation = "sequential"
	cfg.Proxy.MaxFetchAttempts = 2
	cfg.Proxy.Registry.Backend = "memory"
	cfg.Report.Format = "text"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

func TestRunDirect(t *testing.T) {
	var hits atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "<html><head><title>landing</title></head></html>")
	}))
	defer target.Close()

	cfg := baseConfig(target.URL)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	rt, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	defer rt.Close()

	stats, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Succeeded != 3 || hits.Load() != 3 {
		t.Fatalf("succeeded = %d, hits = %d, want 3", stats.Succeeded, hits.Load())
	}
	if len(stats.BatchSizes) != 2 || stats.BatchSizes[0] != 2 || stats.BatchSizes[1] != 1 {
		t.Fatalf("BatchSizes = %v, want [2 1]", stats.BatchSizes)
	}
	if stats.RunID != rt.RunID || rt.Manager != nil || rt.Store != nil {
		t.Fatalf("unexpected runtime wiring: %+v", rt)
	}
}

// forwardProxy answers every proxied request itself and counts them.
func forwardProxy(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !r.URL.IsAbs() {
			http.Error(w, "expected proxy request", http.StatusBadRequest)
			return
		}
		hits.Add(1)
		fmt.Fprint(w, "<title>via proxy</title>")
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunPooledUntilExhausted(t *testing.T) {
	var proxied atomic.Int32
	var addresses []string
	for i := 0; i < 3; i++ {
		addresses = append(addresses, strings.TrimPrefix(forwardProxy(t, &proxied).URL, "http://"))
	}

	list := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Join(addresses, "\n"))
	}))
	defer list.Close()

	cfg := baseConfig("http://site.test/page")
	cfg.TotalUnits = 5
	cfg.Concurrency = 1
	cfg.Proxy.Mode = config.ProxyModeOpen
	cfg.Proxy.Sources = []domain.FetchSource{{Name: "list", Kind: domain.SourceList, Endpoint: list.URL}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	rt, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	defer rt.Close()

	stats, err := rt.Run(context.Background())
	if !errors.Is(err, dispatch.ErrRunAborted) {
		t.Fatalf("Run error = %v, want ErrRunAborted", err)
	}
	if stats.Succeeded != 3 || proxied.Load() != 3 {
		t.Fatalf("succeeded = %d, proxied = %d, want 3", stats.Succeeded, proxied.Load())
	}
	if stats.FailuresByKind[domain.KindProxyExhausted] != 1 {
		t.Fatalf("FailuresByKind = %v", stats.FailuresByKind)
	}
	if stats.Pool.TotalUsed != 3 {
		t.Fatalf("Pool stats = %+v", stats.Pool)
	}
}

func TestRunPooledFallsBackDirect(t *testing.T) {
	var direct atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		direct.Add(1)
		fmt.Fprint(w, "<title>direct</title>")
	}))
	defer target.Close()

	list := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "# nothing today\n")
	}))
	defer list.Close()

	cfg := baseConfig(target.URL)
	cfg.Proxy.Mode = config.ProxyModeOpen
	cfg.Proxy.FallbackDirect = true
	cfg.Proxy.Sources = []domain.FetchSource{{Kind: domain.SourceList, Endpoint: list.URL}}

	rt, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	defer rt.Close()

	stats, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Succeeded != 3 || stats.DirectUnits != 3 || direct.Load() != 3 {
		t.Fatalf("succeeded = %d, direct units = %d, hits = %d, want 3", stats.Succeeded, stats.DirectUnits, direct.Load())
	}
	if !rt.Orchestrator.DirectMode() {
		t.Fatal("orchestrator did not switch to direct mode")
	}
}

func TestBuildExecutorRobotsGuard(t *testing.T) {
	cfg := baseConfig("https://example.com")
	if _, ok := BuildExecutor(cfg).(*executor.RobotsGuard); ok {
		t.Fatal("robots guard present without respectRobots")
	}
	cfg.Executor.RespectRobots = true
	if _, ok := BuildExecutor(cfg).(*executor.RobotsGuard); !ok {
		t.Fatal("robots guard missing with respectRobots")
	}
}

func TestSetupStaticProxy(t *testing.T) {
	cfg := baseConfig("https://example.com")
	cfg.Proxy.Mode = config.ProxyModeStatic
	cfg.Proxy.Static = config.StaticProxyConfig{Protocol: "http", Host: "10.1.1.1", Port: 3128}

	rt, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	defer rt.Close()
	if rt.Manager != nil {
		t.Fatal("static mode should not build a pool manager")
	}
}

type stubFetcher struct {
	size int
	err  error
}

func (f stubFetcher) Fetch(_ context.Context, source domain.FetchSource, _ proxypool.Excluder) (*proxypool.Pool, error) {
	if f.err != nil {
		return nil, f.err
	}
	records := make([]*domain.ProxyRecord, f.size)
	for i := range records {
		records[i] = &domain.ProxyRecord{Host: "10.0.0.1", Port: uint16(1000 + i)}
	}
	return proxypool.NewPool(source.String(), records), nil
}

func TestProbeOrdersByPriority(t *testing.T) {
	fetchers := map[domain.SourceKind]proxypool.Fetcher{
		domain.SourceAPI:  stubFetcher{err: proxypool.ErrAuthenticationMissing},
		domain.SourceList: stubFetcher{size: 4},
	}
	sources := []domain.FetchSource{
		{Name: "second", Kind: domain.SourceList, Priority: 2},
		{Name: "first", Kind: domain.SourceAPI, Priority: 1},
		{Name: "orphan", Kind: domain.SourceHTML, Priority: 3},
	}

	probes := probe(context.Background(), fetchers, sources)
	if len(probes) != 3 || probes[0].Source.Name != "first" || probes[1].Source.Name != "second" {
		t.Fatalf("probes not ordered by priority: %+v", probes)
	}
	if !errors.Is(probes[0].Err, proxypool.ErrAuthenticationMissing) {
		t.Fatalf("first probe error = %v", probes[0].Err)
	}
	if probes[1].Candidates != 4 || probes[1].Err != nil {
		t.Fatalf("second probe = %+v", probes[1])
	}
	if !errors.Is(probes[2].Err, proxypool.ErrSourceUnavailable) {
		t.Fatalf("orphan probe error = %v", probes[2].Err)
	}
}
