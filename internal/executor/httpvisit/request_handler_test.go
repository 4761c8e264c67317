package httpvisit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

func TestPerformDirect(t *testing.T) {
	sentUA := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sentUA <- r.Header.Get("User-Agent")
		fmt.Fprint(w, "<html><head><title> Landing Page </title></head><body>hello</body></html>")
	}))
	t.Cleanup(srv.Close)

	exec := New(Options{UserAgents: []string{"ua-test"}})
	outcome := exec.Perform(context.Background(), srv.URL, nil)
	if !outcome.OK {
		t.Fatalf("Perform failed: %+v", outcome)
	}
	if !strings.Contains(outcome.Payload, `title="Landing Page"`) || !strings.Contains(outcome.Payload, "status=200") {
		t.Fatalf("unexpected payload %q", outcome.Payload)
	}
	if gotUA := <-sentUA; outcome.Metadata.UserAgent != "ua-test" || gotUA != "ua-test" {
		t.Fatalf("user agent = %q (sent %q), want ua-test", outcome.Metadata.UserAgent, gotUA)
	}
	if outcome.Metadata.Locale == "" {
		t.Fatal("expected a locale in metadata")
	}
}

func TestPerformClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   domain.FailureKind
	}{
		{http.StatusTooManyRequests, domain.KindRateLimited},
		{http.StatusServiceUnavailable, domain.KindServerFault},
		{http.StatusNotFound, domain.KindHardFailure},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			outcome := New(Options{}).Perform(context.Background(), srv.URL, nil)
			if outcome.OK || outcome.FailureKind != tt.want {
				t.Fatalf("outcome = %+v, want kind %s", outcome, tt.want)
			}
		})
	}
}

func TestPerformTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := New(Options{}).Perform(ctx, srv.URL, nil)
	if outcome.FailureKind != domain.KindTimeout {
		t.Fatalf("outcome = %+v, want timeout", outcome)
	}
}

func TestPerformMalformedTarget(t *testing.T) {
	for _, target := range []string{"not a url", "ftp://example.com/file", "http://"} {
		outcome := New(Options{}).Perform(context.Background(), target, nil)
		if outcome.FailureKind != domain.KindMalformedTarget {
			t.Fatalf("Perform(%q) = %+v, want malformed target", target, outcome)
		}
	}
}

func TestPerformThroughHTTPProxy(t *testing.T) {
	type proxied struct{ url, auth string }
	seen := make(chan proxied, 1)
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- proxied{url: r.URL.String(), auth: r.Header.Get("Proxy-Authorization")}
		fmt.Fprint(w, "<title>via proxy</title>")
	}))
	t.Cleanup(proxySrv.Close)

	record := &domain.ProxyRecord{
		Protocol: domain.ProtocolHTTP,
		HostPort: strings.TrimPrefix(proxySrv.URL, "http://"),
		Username: "user",
		Password: "pass",
	}

	outcome := New(Options{}).Perform(context.Background(), "http://target.invalid/watch?v=1", record)
	if !outcome.OK {
		t.Fatalf("Perform through proxy failed: %+v", outcome)
	}
	got := <-seen
	if got.url != "http://target.invalid/watch?v=1" {
		t.Fatalf("proxy saw request for %q", got.url)
	}
	if !strings.HasPrefix(got.auth, "Basic ") {
		t.Fatalf("proxy did not receive credentials, header = %q", got.auth)
	}
	if !strings.Contains(outcome.Payload, "via proxy") {
		t.Fatalf("unexpected payload %q", outcome.Payload)
	}
}

func TestPerformUnsupportedProxy(t *testing.T) {
	record := &domain.ProxyRecord{Protocol: domain.ProtocolSOCKS4, Host: "127.0.0.1", Port: 1080}
	outcome := New(Options{}).Perform(context.Background(), "http://example.com", record)
	if outcome.FailureKind != domain.KindUnsupportedProxy {
		t.Fatalf("outcome = %+v, want unsupported proxy", outcome)
	}
	if outcome.FailureKind.Retryable() {
		t.Fatal("unsupported proxy must not be retryable")
	}
}

func TestCreateTransportSOCKS5(t *testing.T) {
	record := &domain.ProxyRecord{Protocol: domain.ProtocolSOCKS5, Host: "127.0.0.1", Port: 1080}
	transport, err := CreateTransport(record, time.Second)
	if err != nil {
		t.Fatalf("CreateTransport returned error: %v", err)
	}
	if transport.Proxy != nil {
		t.Fatal("SOCKS5 transport should dial through the proxy, not set Transport.Proxy")
	}
	if transport.DialContext == nil {
		t.Fatal("SOCKS5 transport has no dialer")
	}
}
