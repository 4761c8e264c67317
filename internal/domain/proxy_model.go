package domain

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

var ErrUnknownProtocol = errors.New("unknown proxy protocol")

func ParseProtocol(raw string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(raw))); p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5:
		return p, nil
	case "socks":
		return ProtocolSOCKS5, nil
	case "":
		return "", fmt.Errorf("%w: empty", ErrUnknownProtocol)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, raw)
	}
}

// ProxyRecord is one proxy endpoint as produced by a fetcher. Records are
// never mutated once handed to the pool.
type ProxyRecord struct {
	Protocol Protocol
	Host     string
	Port     uint16
	// HostPort is set instead of Host/Port by sources that deliver a pre-joined address.
	HostPort string
	Username string
	Password string

	Source    string
	Country   string
	Anonymity string
	Speed     time.Duration
}

// Identity is the canonical host:port of the record; it does not depend on
// protocol, credentials or source. Hosts are lower-cased, IPv4 octets lose
// leading zeros and ports are rendered in decimal without padding.
func (proxy *ProxyRecord) Identity() string {
	if proxy.HostPort != "" {
		raw := strings.TrimSpace(proxy.HostPort)
		host, port, err := net.SplitHostPort(raw)
		if err != nil {
			return strings.ToLower(raw)
		}
		if n, err := strconv.Atoi(port); err == nil {
			port = strconv.Itoa(n)
		}
		return net.JoinHostPort(canonicalHost(host), port)
	}
	return net.JoinHostPort(canonicalHost(proxy.Host), strconv.Itoa(int(proxy.Port)))
}

func canonicalHost(host string) string {
	return NormalizeIPv4(strings.ToLower(strings.TrimSpace(host)))
}

// NormalizeIPv4 strips leading zeros from each octet ("010.001.0.7" -> "10.1.0.7").
// Anything that is not four numeric octets is returned unchanged.
func NormalizeIPv4(ip string) string {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return ip
	}
	for i, octet := range octets {
		if octet == "" || strings.Trim(octet, "0123456789") != "" {
			return ip
		}
		trimmed := strings.TrimLeft(octet, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		octets[i] = trimmed
	}
	return strings.Join(octets, ".")
}

func (proxy *ProxyRecord) GetFullProxy() string {
	return proxy.Identity()
}

func (proxy *ProxyRecord) HasAuth() bool {
	return proxy.Username != "" && proxy.Password != ""
}

// URL renders the record as scheme://[user:pass@]host:port.
func (proxy *ProxyRecord) URL() *url.URL {
	scheme := string(proxy.Protocol)
	if scheme == "" {
		scheme = string(ProtocolHTTP)
	}
	u := &url.URL{Scheme: scheme, Host: proxy.Identity()}
	if proxy.HasAuth() {
		u.User = url.UserPassword(proxy.Username, proxy.Password)
	}
	return u
}

// String never includes credentials.
func (proxy *ProxyRecord) String() string {
	scheme := string(proxy.Protocol)
	if scheme == "" {
		scheme = string(ProtocolHTTP)
	}
	return scheme + "://" + proxy.Identity()
}

func (proxy *ProxyRecord) Validate() error {
	if proxy.HostPort != "" {
		host, port, err := net.SplitHostPort(proxy.HostPort)
		if err != nil {
			return fmt.Errorf("invalid host:port %q: %w", proxy.HostPort, err)
		}
		if host == "" {
			return fmt.Errorf("invalid host:port %q: missing host", proxy.HostPort)
		}
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid host:port %q: bad port", proxy.HostPort)
		}
		return nil
	}
	if strings.TrimSpace(proxy.Host) == "" {
		return errors.New("missing proxy host")
	}
	if proxy.Port == 0 {
		return errors.New("missing proxy port")
	}
	return nil
}
