package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/jobs/visit"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Validate reports every problem at once so a run fails before any unit is
// dispatched.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Targets) == 0 {
		add("at least one target is required")
	}
	for _, target := range c.Targets {
		if !support.IsValidURL(target) {
			add("target %q is not an absolute http(s) URL", target)
		}
	}
	if blocked := FindBlockedURLs(c.Targets, NewWebsiteBlocklistSet(c.BlockedHosts)); len(blocked) > 0 {
		add("targets on blocked hosts: %s", strings.Join(blocked, ", "))
	}

	if c.TotalUnits < 1 {
		add("totalUnits must be at least 1, got %d", c.TotalUnits)
	}
	if c.Concurrency < 1 {
		add("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.PerUnitTimeout < 0 {
		add("perUnitTimeout must not be negative")
	}
	if err := visit.ValidateSchedule(c.MaxRetries, c.BackoffSchedule()); err != nil {
		errs = append(errs, err)
	}
	if c.Delay.Min < 0 || c.Delay.Max < c.Delay.Min {
		add("delay range [%s, %s] is invalid", c.Delay.Min, c.Delay.Max)
	}

	switch c.Executor.Kind {
	case ExecutorHTTP, ExecutorBrowser:
	default:
		add("executor.kind must be %q or %q, got %q", ExecutorHTTP, ExecutorBrowser, c.Executor.Kind)
	}
	if c.Executor.Browser.DwellMax < c.Executor.Browser.DwellMin {
		add("executor.browser dwell range is inverted")
	}

	errs = append(errs, c.validateProxy()...)

	switch c.Report.Format {
	case "text", "json":
	default:
		add("report.format must be text or json, got %q", c.Report.Format)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		add("log.format must be text, json or logfmt, got %q", c.Log.Format)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (c Config) validateProxy() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	p := c.Proxy

	switch p.Mode {
	case ProxyModeNone:
		return nil
	case ProxyModeStatic:
		if _, err := c.StaticProxy(); err != nil {
			add("proxy.static: %v", err)
		}
		return errs
	case ProxyModePooled, ProxyModeOpen:
	default:
		add("proxy.mode %q is not one of none, static, pooled-authenticated, pooled-open", p.Mode)
		return errs
	}

	if _, err := proxypool.ParseRotation(p.Rotation); err != nil {
		add("proxy.rotation: %v", err)
	}
	if p.MaxFetchAttempts < 1 {
		add("proxy.maxFetchAttempts must be at least 1, got %d", p.MaxFetchAttempts)
	}
	if p.EmptyRetries < 0 {
		add("proxy.emptyRetries must not be negative")
	}
	if p.FetchRate < 0 {
		add("proxy.fetchRate must not be negative")
	}
	if p.Mode == ProxyModePooled && strings.TrimSpace(p.APIKey) == "" {
		add("proxy.apiKey is required for %s (or set PROXY_API_KEY)", ProxyModePooled)
	}

	if len(p.Sources) == 0 {
		add("proxy.sources must list at least one source for %s", p.Mode)
	}
	for i, source := range p.Sources {
		if _, err := domain.ParseSourceKind(string(source.Kind)); err != nil {
			add("proxy.sources[%d]: %v", i, err)
		}
		if !support.IsValidURL(source.Endpoint) {
			add("proxy.sources[%d]: endpoint %q is not an absolute http(s) URL", i, source.Endpoint)
		}
		if source.ProtocolHint != "" {
			if _, err := domain.ParseProtocol(string(source.ProtocolHint)); err != nil {
				add("proxy.sources[%d]: %v", i, err)
			}
		}
	}

	switch p.Registry.Backend {
	case "memory":
	case "redis":
		if p.Registry.RedisURL == "" {
			add("proxy.registry.redisUrl is required for the redis backend (or set REDIS_URL)")
		}
	default:
		add("proxy.registry.backend must be memory or redis, got %q", p.Registry.Backend)
	}

	return errs
}
