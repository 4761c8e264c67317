package httpvisit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

var ErrUnsupportedProxy = errors.New("unsupported proxy protocol")

// CreateTransport builds a single-use transport that routes through record,
// or dials directly when record is nil.
func CreateTransport(record *domain.ProxyRecord, dialTimeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 0,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if record == nil {
		return transport, nil
	}

	switch record.Protocol {
	case domain.ProtocolHTTP, domain.ProtocolHTTPS, "":
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   record.GetFullProxy(),
		}
		if record.HasAuth() {
			proxyURL.User = url.UserPassword(record.Username, record.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)

	case domain.ProtocolSOCKS5:
		var auth *proxy.Auth
		if record.HasAuth() {
			auth = &proxy.Auth{User: record.Username, Password: record.Password}
		}
		socksDialer, err := proxy.SOCKS5("tcp", record.GetFullProxy(), auth, dialer)
		if err != nil {
			return nil, err
		}
		contextDialer, ok := socksDialer.(proxy.ContextDialer)
		if !ok {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		} else {
			transport.DialContext = contextDialer.DialContext
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxy, record.Protocol)
	}

	return transport, nil
}
