package proxypool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

const DefaultMaxFetchAttempts = 5

// Fetcher turns one FetchSource into a pool of records not yet in exclude.
type Fetcher interface {
	Fetch(ctx context.Context, source domain.FetchSource, exclude Excluder) (*Pool, error)
}

type ManagerOptions struct {
	Rotation         Rotation
	MaxFetchAttempts int
	// FetchRate caps fetch calls per second across all sources; 0 disables it.
	FetchRate float64
	Rand      *rand.Rand
}

// Manager hands out pooled proxies that were never handed out before. It is
// safe for concurrent use; callers are serialized on an internal mutex,
// including while a refetch is in flight.
type Manager struct {
	mu sync.Mutex

	registry Registry
	fetchers map[domain.SourceKind]Fetcher
	sources  []domain.FetchSource
	disabled []bool
	next     int

	active           *Pool
	rotation         Rotation
	maxFetchAttempts int
	limiter          *rate.Limiter
	rng              *rand.Rand

	totalUsed int
	refetches int
	discarded int
}

func NewManager(registry Registry, fetchers map[domain.SourceKind]Fetcher, sources []domain.FetchSource, opts ManagerOptions) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("proxypool: registry is required")
	}
	if len(sources) == 0 {
		return nil, errors.New("proxypool: at least one fetch source is required")
	}

	ordered := append([]domain.FetchSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, source := range ordered {
		if _, ok := fetchers[source.Kind]; !ok {
			return nil, fmt.Errorf("proxypool: no fetcher for source %s of kind %q", source, source.Kind)
		}
	}

	maxAttempts := opts.MaxFetchAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxFetchAttempts
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("proxypool: maxFetchAttempts must be at least 1, got %d", opts.MaxFetchAttempts)
	}

	rotation := opts.Rotation
	if rotation == "" {
		rotation = RotationSequential
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.FetchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.FetchRate), 1)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Manager{
		registry:         registry,
		fetchers:         fetchers,
		sources:          ordered,
		disabled:         make([]bool, len(ordered)),
		rotation:         rotation,
		maxFetchAttempts: maxAttempts,
		limiter:          limiter,
		rng:              rng,
	}, nil
}

// NextProxy returns a proxy whose identity has been registered by this call.
// When the active pool runs dry it refetches from the next source in
// priority order, giving up with ErrPoolExhausted after maxFetchAttempts
// fetch calls. The manager lock is held across the rate limiter and the
// fetch itself, so concurrent callers, including ones whose context is
// already canceled, wait until an in-flight refetch returns.
func (m *Manager) NextProxy(ctx context.Context) (*domain.ProxyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := 0
	for {
		if record, ok := m.consume(); ok {
			return record, nil
		}

		if attempts >= m.maxFetchAttempts {
			return nil, fmt.Errorf("%w: %d fetch attempts yielded no unused proxy", ErrPoolExhausted, attempts)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx, ok := m.nextSource()
		if !ok {
			return nil, fmt.Errorf("%w: every source is disabled", ErrPoolExhausted)
		}
		attempts++

		if err := m.refetch(ctx, idx); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) consume() (*domain.ProxyRecord, bool) {
	if m.active == nil {
		return nil, false
	}
	for {
		record, ok := m.active.Take(m.rotation, m.rng)
		if !ok {
			return nil, false
		}
		if !m.registry.Register(record.Identity()) {
			m.discarded++
			log.Debug("discarding proxy already handed out", "proxy", record.Identity(), "source", record.Source)
			continue
		}
		m.totalUsed++
		return record, true
	}
}

// nextSource returns the index of the next enabled source, wrapping around.
func (m *Manager) nextSource() (int, bool) {
	for i := 0; i < len(m.sources); i++ {
		idx := (m.next + i) % len(m.sources)
		if m.disabled[idx] {
			continue
		}
		m.next = (idx + 1) % len(m.sources)
		return idx, true
	}
	return 0, false
}

func (m *Manager) refetch(ctx context.Context, idx int) error {
	source := m.sources[idx]

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for fetch slot: %w", err)
	}

	m.refetches++
	pool, err := m.fetchers[source.Kind].Fetch(ctx, source, m.registry)
	if err != nil {
		if errors.Is(err, ErrAuthenticationMissing) {
			m.disabled[idx] = true
			log.Error("disabling proxy source", "source", source.String(), "error", err)
		} else {
			log.Warn("proxy source fetch failed", "source", source.String(), "error", err)
		}
		return err
	}

	m.active = pool
	log.Info("proxy pool refreshed", "source", source.String(), "size", pool.Size(), "registered", m.registry.Len())
	return nil
}

// Stats is a reporting snapshot; it has no effect on consumption.
func (m *Manager) Stats() domain.PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.PoolStats{TotalUsed: m.totalUsed, Refetches: m.refetches}
	if m.active != nil {
		stats.RemainingInPool = m.active.Remaining()
		stats.PoolSize = m.active.Size()
	}
	return stats
}
