package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

func TestProxyServerArg(t *testing.T) {
	tests := []struct {
		name   string
		record *domain.ProxyRecord
		want   string
	}{
		{name: "direct", record: nil, want: ""},
		{name: "http", record: &domain.ProxyRecord{Protocol: domain.ProtocolHTTP, Host: "1.2.3.4", Port: 8080}, want: "http://1.2.3.4:8080"},
		{name: "https uses http scheme", record: &domain.ProxyRecord{Protocol: domain.ProtocolHTTPS, HostPort: "1.2.3.4:443"}, want: "http://1.2.3.4:443"},
		{name: "socks5", record: &domain.ProxyRecord{Protocol: domain.ProtocolSOCKS5, Host: "5.6.7.8", Port: 1080}, want: "socks5://5.6.7.8:1080"},
		{name: "socks4", record: &domain.ProxyRecord{Protocol: domain.ProtocolSOCKS4, Host: "5.6.7.8", Port: 1080}, want: "socks4://5.6.7.8:1080"},
		{name: "credentials omitted", record: &domain.ProxyRecord{Protocol: domain.ProtocolHTTP, Host: "1.2.3.4", Port: 80, Username: "u", Password: "p"}, want: "http://1.2.3.4:80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProxyServerArg(tt.record); got != tt.want {
				t.Fatalf("ProxyServerArg = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseViewport(t *testing.T) {
	if w, h, ok := parseViewport("1920x1080"); !ok || w != 1920 || h != 1080 {
		t.Fatalf("parseViewport(1920x1080) = %d, %d, %t", w, h, ok)
	}
	for _, raw := range []string{"", "1920", "axb", "0x100", "100x-1"} {
		if _, _, ok := parseViewport(raw); ok {
			t.Fatalf("parseViewport(%q) should fail", raw)
		}
	}
}

func TestPickMetadataUsesConfiguredLists(t *testing.T) {
	exec := New(Options{UserAgents: []string{"ua-only"}, Viewports: []string{"bogus"}})
	metadata, w, h := exec.pickMetadata()
	if metadata.UserAgent != "ua-only" {
		t.Fatalf("UserAgent = %q, want ua-only", metadata.UserAgent)
	}
	if metadata.Viewport != "1366x768" || w != 1366 || h != 768 {
		t.Fatalf("invalid viewport should fall back to 1366x768, got %s (%dx%d)", metadata.Viewport, w, h)
	}
}

func TestClassifyNavigation(t *testing.T) {
	ctx := context.Background()

	if got := classifyNavigation(ctx, &rod.NavigationError{Reason: "net::ERR_TIMED_OUT"}); got != domain.KindTimeout {
		t.Fatalf("timed out navigation classified as %q", got)
	}
	wrapped := fmt.Errorf("navigate: %w", &rod.NavigationError{Reason: "net::ERR_PROXY_CONNECTION_FAILED"})
	if got := classifyNavigation(ctx, wrapped); got != domain.KindTransport {
		t.Fatalf("proxy failure classified as %q", got)
	}
	if got := classifyNavigation(ctx, context.DeadlineExceeded); got != domain.KindTimeout {
		t.Fatalf("deadline classified as %q", got)
	}
	if got := classifyNavigation(ctx, errors.New("boom")); got != domain.KindTransport {
		t.Fatalf("generic error classified as %q", got)
	}
}

func TestPerformRejectsBeforeLaunching(t *testing.T) {
	exec := New(Options{})

	if outcome := exec.Perform(context.Background(), "mailto:someone", nil); outcome.FailureKind != domain.KindMalformedTarget {
		t.Fatalf("outcome = %+v, want malformed target", outcome)
	}

	socks := &domain.ProxyRecord{Protocol: domain.ProtocolSOCKS5, Host: "1.2.3.4", Port: 1080, Username: "u", Password: "p"}
	if outcome := exec.Perform(context.Background(), "https://example.com", socks); outcome.FailureKind != domain.KindUnsupportedProxy {
		t.Fatalf("outcome = %+v, want unsupported proxy", outcome)
	}
}

func TestNetworkEnableFailureIsHard(t *testing.T) {
	outcome := networkEnableFailed(context.Background(), "https://example.com", errors.New("cdp closed"))
	if outcome.OK || outcome.FailureKind != domain.KindHardFailure {
		t.Fatalf("outcome = %+v, want hard failure", outcome)
	}
	if outcome.FailureKind.Retryable() {
		t.Fatal("network enable failure must not be retried")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := networkEnableFailed(ctx, "https://example.com", context.Canceled); got.FailureKind != domain.KindCanceled {
		t.Fatalf("canceled attempt classified as %q", got.FailureKind)
	}
}
