package support

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

var proxyAddressRegex = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}:\d{1,5}\b`)

// ParseTextToProxies reads one proxy per line. Accepted forms:
// ip:port, ip:port:user:pass, user:pass@ip:port, each optionally prefixed
// with scheme://. Lines without a scheme take the fallback protocol.
func ParseTextToProxies(text string, fallback domain.Protocol, source string) []*domain.ProxyRecord {
	text = clearProxyString(text)

	lines := strings.Split(text, "\n")
	proxies := make([]*domain.ProxyRecord, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		protocol := fallback
		if scheme, rest, ok := strings.Cut(line, "://"); ok {
			parsed, err := domain.ParseProtocol(scheme)
			if err != nil {
				continue
			}
			protocol = parsed
			line = rest
		}

		var username, password string
		if creds, address, ok := strings.Cut(line, "@"); ok {
			username, password, _ = strings.Cut(creds, ":")
			line = address
		}

		split := strings.Split(line, ":")
		count := len(split)
		if count != 2 && count != 4 {
			continue
		}

		ip := domain.NormalizeIPv4(split[0])
		if net.ParseIP(ip) == nil {
			continue
		}

		port, err := strconv.Atoi(split[1])
		if err != nil || port < 1 || port > 65535 {
			continue
		}

		proxy := &domain.ProxyRecord{
			Protocol: protocol,
			Host:     ip,
			Port:     uint16(port),
			Username: username,
			Password: password,
			Source:   source,
		}
		if count == 4 {
			proxy.Username = split[2]
			proxy.Password = split[3]
		}

		proxies = append(proxies, proxy)
	}

	return proxies
}

// FindProxyAddresses extracts every ip:port occurrence from free text.
func FindProxyAddresses(text string) []string {
	return proxyAddressRegex.FindAllString(text, -1)
}

func clearProxyString(proxies string) string {
	proxies = strings.ReplaceAll(proxies, "\r", "")
	proxies = strings.ReplaceAll(proxies, "\t", "")
	return proxies
}
