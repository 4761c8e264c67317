// Package browser performs visits in a real headless Chromium driven by rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/executor"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

const statusWaitWindow = time.Second

type Options struct {
	Bin        string
	Headless   bool
	UserAgents []string
	Viewports  []string
	// Dwell keeps the page open for a random time in [DwellMin, DwellMax].
	DwellMin time.Duration
	DwellMax time.Duration
	Rand     *rand.Rand
}

type Executor struct {
	opts Options

	mu  sync.Mutex
	rng *rand.Rand
}

func New(opts Options) *Executor {
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = support.DefaultUserAgents()
	}
	if len(opts.Viewports) == 0 {
		opts.Viewports = support.DefaultViewports()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Executor{opts: opts, rng: rng}
}

func (e *Executor) Perform(ctx context.Context, target string, proxy *domain.ProxyRecord) domain.Outcome {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return domain.Failed(domain.KindMalformedTarget, "invalid target %q", target)
	}
	if proxy != nil && proxy.HasAuth() && strings.HasPrefix(string(proxy.Protocol), "socks") {
		return domain.Failed(domain.KindUnsupportedProxy, "chromium cannot authenticate to %s proxies", proxy.Protocol)
	}

	s, err := e.launchSession(ctx, proxy)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Failed(executor.ClassifyError(ctx, err), "%v", err)
		}
		return domain.Failed(domain.KindHardFailure, "%v", err)
	}
	defer s.close()

	page, err := stealth.Page(s.browser)
	if err != nil {
		return domain.Failed(domain.KindHardFailure, "open stealth page: %v", err)
	}
	page = page.Context(ctx)

	metadata, width, height := e.pickMetadata()
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: metadata.UserAgent}); err != nil {
		return domain.Failed(executor.ClassifyError(ctx, err), "set user agent: %v", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            width < 800,
	}); err != nil {
		return domain.Failed(executor.ClassifyError(ctx, err), "set viewport: %v", err)
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		log.Debug("enable network events failed", "url", target, "error", err)
		return networkEnableFailed(ctx, target, err)
	}

	eventCtx, cancelEvents := context.WithCancel(ctx)
	defer cancelEvents()

	statusCh := make(chan int, 1)
	waitStatus := page.Context(eventCtx).EachEvent(func(ev *proto.NetworkResponseReceived) bool {
		if ev.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		select {
		case statusCh <- ev.Response.Status:
		default:
		}
		return true
	})
	go waitStatus()

	if err := page.Navigate(target); err != nil {
		return domain.Failed(classifyNavigation(ctx, err), "navigate %s: %v", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		return domain.Failed(classifyNavigation(ctx, err), "wait load %s: %v", target, err)
	}

	status := 0
	select {
	case status = <-statusCh:
	case <-time.After(statusWaitWindow):
	}
	if kind := executor.ClassifyStatus(status); kind != domain.KindNone {
		return domain.Failed(kind, "%s returned status %d", target, status)
	}

	if err := e.dwell(ctx, page, width, height); err != nil {
		return domain.Failed(executor.ClassifyError(ctx, err), "dwell on %s: %v", target, err)
	}

	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}
	textLength := 0
	if res, err := page.Eval(`() => document.body ? document.body.innerText.length : 0`); err == nil {
		textLength = res.Value.Int()
	}

	return domain.Succeeded(fmt.Sprintf("status=%d title=%q text=%d", status, title, textLength), metadata)
}

func (e *Executor) pickMetadata() (domain.ContextMetadata, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	viewport := support.PickOne(e.rng, e.opts.Viewports)
	width, height, ok := parseViewport(viewport)
	if !ok {
		viewport, width, height = "1366x768", 1366, 768
	}
	return domain.ContextMetadata{
		UserAgent: support.PickOne(e.rng, e.opts.UserAgents),
		Viewport:  viewport,
	}, width, height
}

func (e *Executor) dwell(ctx context.Context, page *rod.Page, width, height int) error {
	e.mu.Lock()
	d := support.RandomBetween(e.rng, e.opts.DwellMin, e.opts.DwellMax)
	x := float64(e.rng.IntN(width))
	y := float64(e.rng.IntN(height))
	e.mu.Unlock()

	if d <= 0 {
		return nil
	}
	if err := page.Mouse.MoveLinear(proto.Point{X: x, Y: y}, 12); err != nil {
		log.Debug("pointer move failed", "error", err)
	}
	return support.SleepContext(ctx, d)
}

// networkEnableFailed rejects the attempt: without network events the
// document status cannot be observed.
func networkEnableFailed(ctx context.Context, target string, err error) domain.Outcome {
	if ctx.Err() != nil {
		return domain.Failed(executor.ClassifyError(ctx, err), "enable network events for %s: %v", target, err)
	}
	return domain.Failed(domain.KindHardFailure, "enable network events for %s: %v", target, err)
}

func parseViewport(raw string) (int, int, bool) {
	w, h, ok := strings.Cut(strings.ToLower(raw), "x")
	if !ok {
		return 0, 0, false
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, false
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

var navigationTimeouts = map[string]struct{}{
	"net::ERR_TIMED_OUT":            {},
	"net::ERR_CONNECTION_TIMED_OUT": {},
}

func classifyNavigation(ctx context.Context, err error) domain.FailureKind {
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		if _, ok := navigationTimeouts[navErr.Reason]; ok {
			return domain.KindTimeout
		}
		return domain.KindTransport
	}
	return executor.ClassifyError(ctx, err)
}
