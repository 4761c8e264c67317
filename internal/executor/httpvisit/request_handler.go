// Package httpvisit performs visits as plain HTTP GET requests.
package httpvisit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/executor"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

const (
	defaultDialTimeout  = 15 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

var defaultLocales = []string{"en-US,en;q=0.9", "en-GB,en;q=0.8", "de-DE,de;q=0.9,en;q=0.6", "fr-FR,fr;q=0.9,en;q=0.5"}

type Options struct {
	DialTimeout  time.Duration
	UserAgents   []string
	Locales      []string
	MaxBodyBytes int64
	Rand         *rand.Rand
}

type Executor struct {
	opts Options

	mu  sync.Mutex
	rng *rand.Rand

	createTransport func(*domain.ProxyRecord, time.Duration) (*http.Transport, error)
}

func New(opts Options) *Executor {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = support.DefaultUserAgents()
	}
	if len(opts.Locales) == 0 {
		opts.Locales = defaultLocales
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Executor{opts: opts, rng: rng, createTransport: CreateTransport}
}

func (e *Executor) Perform(ctx context.Context, target string, proxy *domain.ProxyRecord) domain.Outcome {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return domain.Failed(domain.KindMalformedTarget, "invalid target %q", target)
	}

	transport, err := e.createTransport(proxy, e.opts.DialTimeout)
	if err != nil {
		if errors.Is(err, ErrUnsupportedProxy) {
			return domain.Failed(domain.KindUnsupportedProxy, "%v", err)
		}
		return domain.Failed(domain.KindTransport, "create transport: %v", err)
	}
	defer transport.CloseIdleConnections()

	metadata := e.pickMetadata()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Failed(domain.KindMalformedTarget, "build request: %v", err)
	}
	req.Header.Set("User-Agent", metadata.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", metadata.Locale)

	client := &http.Client{Transport: transport}
	resp, err := client.Do(req)
	if err != nil {
		return domain.Failed(executor.ClassifyError(ctx, err), "request %s: %v", target, err)
	}
	defer resp.Body.Close()

	if kind := executor.ClassifyStatus(resp.StatusCode); kind != domain.KindNone {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return domain.Failed(kind, "%s returned status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.MaxBodyBytes))
	if err != nil {
		return domain.Failed(executor.ClassifyError(ctx, err), "read body: %v", err)
	}

	return domain.Succeeded(summarize(body, resp.StatusCode), metadata)
}

func (e *Executor) pickMetadata() domain.ContextMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.ContextMetadata{
		UserAgent: support.PickOne(e.rng, e.opts.UserAgents),
		Locale:    support.PickOne(e.rng, e.opts.Locales),
	}
}

// summarize reports the page title and size; the body itself is not kept.
func summarize(body []byte, status int) string {
	title := ""
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return fmt.Sprintf("status=%d bytes=%d title=%q", status, len(body), title)
}
