package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/NoorahSmith/ViewCounter-d/internal/config"
	"github.com/NoorahSmith/ViewCounter-d/internal/database"
	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/executor"
	"github.com/NoorahSmith/ViewCounter-d/internal/executor/browser"
	"github.com/NoorahSmith/ViewCounter-d/internal/executor/httpvisit"
	"github.com/NoorahSmith/ViewCounter-d/internal/geolite"
	"github.com/NoorahSmith/ViewCounter-d/internal/jobs/dispatch"
	"github.com/NoorahSmith/ViewCounter-d/internal/jobs/visit"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool/fetcher"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

const robotsTimeout = 10 * time.Second

// Runtime is one fully wired run.
type Runtime struct {
	RunID        string
	Config       config.Config
	Manager      *proxypool.Manager
	Orchestrator *visit.Orchestrator
	Dispatcher   *dispatch.Dispatcher
	Store        *database.Store

	closers []func() error
}

// Setup builds every component for cfg, which must already be valid.
func Setup(ctx context.Context, cfg config.Config) (*Runtime, error) {
	rt := &Runtime{RunID: uuid.NewString(), Config: cfg}

	exec := BuildExecutor(cfg)

	proxies, err := rt.buildProxyProvider(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Orchestrator, err = visit.New(exec, proxies, visit.Options{
		MaxRetries:     cfg.MaxRetries,
		BackoffDelays:  cfg.BackoffSchedule(),
		PerUnitTimeout: cfg.PerUnitTimeout,
		FallbackDirect: cfg.Proxy.FallbackDirect,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.Store.DSN != "" {
		store, err := database.Open(cfg.Store.DSN)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Store = store
		rt.closers = append(rt.closers, store.Close)
	}

	delayMin, delayMax := cfg.DelayRange()
	opts := dispatch.Options{
		RunID:    rt.RunID,
		Targets:  cfg.Targets,
		DelayMin: delayMin,
		DelayMax: delayMax,
	}
	if rt.Store != nil {
		opts.Sink = rt.Store
	}
	if rt.Manager != nil {
		opts.Pool = rt.Manager
	}
	rt.Dispatcher, err = dispatch.New(rt.Orchestrator, opts)
	if err != nil {
		rt.Close()
		return nil, err
	}

	log.Debug("Runtime ready", "run", rt.RunID, "executor", cfg.Executor.Kind, "proxyMode", cfg.Proxy.Mode, "store", rt.Store != nil)
	return rt, nil
}

// Run dispatches the configured workload and records it in the store when
// one is configured. Statistics are returned even when the run aborts.
func (rt *Runtime) Run(ctx context.Context) (*domain.RunStatistics, error) {
	if rt.Store != nil {
		record := &domain.RunRecord{
			RunID:       rt.RunID,
			Targets:     domain.StringList(rt.Config.Targets),
			TotalUnits:  rt.Config.TotalUnits,
			Concurrency: rt.Config.Concurrency,
			ProxyMode:   string(rt.Config.Proxy.Mode),
			Executor:    rt.Config.Executor.Kind,
			StartedAt:   time.Now(),
		}
		if err := rt.Store.BeginRun(ctx, record); err != nil {
			log.Warn("Could not record run start", "run", rt.RunID, "error", err)
		}
	}

	stats, err := rt.Dispatcher.Run(ctx, rt.Config.TotalUnits, rt.Config.Concurrency)

	if rt.Store != nil && stats != nil {
		if ferr := rt.Store.FinishRun(context.WithoutCancel(ctx), stats); ferr != nil {
			log.Warn("Could not record run totals", "run", rt.RunID, "error", ferr)
		}
	}
	return stats, err
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Warn("error releasing resource", "error", err)
		}
	}
	rt.closers = nil
}

func (rt *Runtime) buildProxyProvider(ctx context.Context) (visit.ProxyProvider, error) {
	cfg := rt.Config
	switch cfg.Proxy.Mode {
	case config.ProxyModeNone, "":
		return nil, nil
	case config.ProxyModeStatic:
		record, err := cfg.StaticProxy()
		if err != nil {
			return nil, err
		}
		provider, err := proxypool.NewStaticProvider(record)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}

	registry, closeRegistry, err := BuildRegistry(ctx, cfg, rt.RunID)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeRegistry)

	fetchers, closeFetchers, err := BuildFetchers(cfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeFetchers)

	rotation, err := proxypool.ParseRotation(cfg.Proxy.Rotation)
	if err != nil {
		return nil, err
	}

	manager, err := proxypool.NewManager(registry, fetchers, cfg.Proxy.Sources, proxypool.ManagerOptions{
		Rotation:         rotation,
		MaxFetchAttempts: cfg.Proxy.MaxFetchAttempts,
		FetchRate:        cfg.Proxy.FetchRate,
	})
	if err != nil {
		return nil, err
	}
	rt.Manager = manager
	return manager, nil
}

// BuildRegistry returns the identity registry for runID and a func that
// releases it.
func BuildRegistry(ctx context.Context, cfg config.Config, runID string) (proxypool.Registry, func() error, error) {
	if cfg.Proxy.Registry.Backend != "redis" {
		return proxypool.NewMemoryRegistry(), func() error { return nil }, nil
	}

	client, err := support.GetRedisClient(ctx, cfg.Proxy.Registry.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get redis client: %w", err)
	}
	registry := proxypool.NewRedisRegistry(client, runID)
	log.Debug("Using redis proxy registry", "key", proxypool.RedisRegistryKey(runID))

	return registry, func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(registry.Close(closeCtx), support.CloseRedisClient())
	}, nil
}

// BuildFetchers returns the fetcher per source kind, with GeoLite enrichment
// when a database is configured.
func BuildFetchers(cfg config.Config) (map[domain.SourceKind]proxypool.Fetcher, func() error, error) {
	opts := fetcher.Options{
		APIKey:       cfg.Proxy.APIKey,
		APIKeyParam:  cfg.Proxy.APIKeyParam,
		EmptyRetries: cfg.Proxy.EmptyRetries,
		Timeout:      cfg.Proxy.FetchTimeout,
	}

	closer := func() error { return nil }
	if cfg.Proxy.GeoliteDB != "" {
		lookup, err := geolite.Open(cfg.Proxy.GeoliteDB)
		if err != nil {
			return nil, nil, err
		}
		opts.Enricher = lookup
		closer = lookup.Close
	}

	return fetcher.New(opts), closer, nil
}

func BuildExecutor(cfg config.Config) executor.Executor {
	var exec executor.Executor
	switch cfg.Executor.Kind {
	case config.ExecutorBrowser:
		exec = browser.New(browser.Options{
			Bin:        cfg.Executor.Browser.Bin,
			Headless:   cfg.Executor.Browser.Headless,
			UserAgents: cfg.Executor.UserAgents,
			DwellMin:   cfg.Executor.Browser.DwellMin,
			DwellMax:   cfg.Executor.Browser.DwellMax,
		})
	default:
		exec = httpvisit.New(httpvisit.Options{
			DialTimeout:  cfg.PerUnitTimeout,
			UserAgents:   cfg.Executor.UserAgents,
			MaxBodyBytes: cfg.Executor.MaxBodyBytes,
		})
	}

	if cfg.Executor.RespectRobots {
		userAgent := support.DefaultUserAgents()[0]
		if len(cfg.Executor.UserAgents) > 0 {
			userAgent = cfg.Executor.UserAgents[0]
		}
		exec = executor.NewRobotsGuard(exec, userAgent, robotsTimeout)
	}
	return exec
}
