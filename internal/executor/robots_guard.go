package executor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/temoto/robotstxt"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

const (
	robotsCacheTTL       = time.Hour
	defaultRobotsTimeout = 10 * time.Second
)

type robotsCacheEntry struct {
	data    *robotstxt.RobotsData
	fetched time.Time
}

type RobotsCheckResult struct {
	Allowed     bool
	RobotsFound bool
}

// RobotsGuard refuses targets that the site's robots.txt disallows for the
// configured user agent. A robots.txt that cannot be fetched allows the visit.
type RobotsGuard struct {
	next      Executor
	userAgent string
	client    *http.Client

	mu      sync.Mutex
	entries map[string]robotsCacheEntry
}

func NewRobotsGuard(next Executor, userAgent string, timeout time.Duration) *RobotsGuard {
	if timeout <= 0 {
		timeout = defaultRobotsTimeout
	}
	return &RobotsGuard{
		next:      next,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		entries:   make(map[string]robotsCacheEntry),
	}
}

func (g *RobotsGuard) Perform(ctx context.Context, target string, proxy *domain.ProxyRecord) domain.Outcome {
	result, err := g.CheckRobotsAllowance(ctx, target)
	if err != nil {
		log.Warn("robots.txt check failed", "url", target, "error", err)
	}
	if result.RobotsFound && !result.Allowed {
		log.Info("robots.txt disallows visiting; skipping", "url", target)
		return domain.Failed(domain.KindBlocked, "robots.txt disallows %s", target)
	}
	return g.next.Perform(ctx, target, proxy)
}

func (g *RobotsGuard) CheckRobotsAllowance(ctx context.Context, targetURL string) (RobotsCheckResult, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return RobotsCheckResult{Allowed: true}, fmt.Errorf("parse robots target: %w", err)
	}
	if parsed.Host == "" {
		return RobotsCheckResult{Allowed: true}, fmt.Errorf("parse robots target: missing host in %q", targetURL)
	}

	entry, fetchErr := g.loadRobotsEntry(ctx, parsed)
	if fetchErr != nil {
		return RobotsCheckResult{Allowed: true}, fetchErr
	}
	if entry.data == nil {
		return RobotsCheckResult{Allowed: true, RobotsFound: false}, nil
	}

	group := entry.data.FindGroup(g.userAgent)
	if group == nil {
		group = entry.data.FindGroup("*")
	}
	if group == nil {
		return RobotsCheckResult{Allowed: true, RobotsFound: true}, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	return RobotsCheckResult{
		Allowed:     group.Test(path),
		RobotsFound: true,
	}, nil
}

func (g *RobotsGuard) loadRobotsEntry(ctx context.Context, parsed *url.URL) (robotsCacheEntry, error) {
	key := robotsCacheKey(parsed)

	if entry, ok := g.getCachedRobotsEntry(key); ok {
		return entry, nil
	}

	entry, err := g.fetchRobotsEntry(ctx, parsed)
	if err != nil {
		return entry, err
	}

	entry.fetched = time.Now()

	g.mu.Lock()
	g.entries[key] = entry
	g.mu.Unlock()

	return entry, nil
}

func (g *RobotsGuard) getCachedRobotsEntry(key string) (robotsCacheEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[key]
	if !ok {
		return robotsCacheEntry{}, false
	}

	if time.Since(entry.fetched) > robotsCacheTTL {
		delete(g.entries, key)
		return robotsCacheEntry{}, false
	}

	return entry, true
}

func (g *RobotsGuard) fetchRobotsEntry(ctx context.Context, parsed *url.URL) (robotsCacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURLFor(parsed), nil)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return robotsCacheEntry{}, nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return robotsCacheEntry{}, err
	}

	return robotsCacheEntry{data: data}, nil
}

func robotsCacheKey(parsed *url.URL) string {
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, parsed.Host)
}

func robotsURLFor(parsed *url.URL) string {
	return robotsCacheKey(parsed) + "/robots.txt"
}
