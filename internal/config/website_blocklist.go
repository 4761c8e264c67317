package config

import (
	"net/url"
	"strings"
)

// NormalizeWebsiteBlacklist trims, lowercases, and deduplicates host entries.
func NormalizeWebsiteBlacklist(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		host := normalizeHostname(raw)
		if host == "" {
			continue
		}
		if _, exists := unique[host]; exists {
			continue
		}
		unique[host] = struct{}{}
		normalized = append(normalized, host)
	}

	return normalized
}

func NewWebsiteBlocklistSet(entries []string) map[string]struct{} {
	normalized := NormalizeWebsiteBlacklist(entries)
	set := make(map[string]struct{}, len(normalized))
	for _, host := range normalized {
		set[host] = struct{}{}
	}
	return set
}

// FindBlockedURLs returns the urls whose host, or a parent domain of it, is in blockedSet.
func FindBlockedURLs(urls []string, blockedSet map[string]struct{}) []string {
	if len(urls) == 0 || len(blockedSet) == 0 {
		return nil
	}

	var blocked []string
	for _, raw := range urls {
		if isHostBlocked(normalizeHostname(raw), blockedSet) {
			blocked = append(blocked, raw)
		}
	}
	return blocked
}

func normalizeHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	// Allow bare hostnames by prefixing a scheme for URL parsing.
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	return strings.Trim(strings.ToLower(parsed.Hostname()), ".")
}

func isHostBlocked(host string, blockedSet map[string]struct{}) bool {
	if host == "" {
		return false
	}
	if _, ok := blockedSet[host]; ok {
		return true
	}
	for blocked := range blockedSet {
		if strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}
