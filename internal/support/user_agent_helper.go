package support

import "math/rand/v2"

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Mobile Safari/537.36",
}

var defaultViewports = []string{"1920x1080", "1366x768", "1536x864", "1440x900", "1280x720", "390x844"}

func DefaultUserAgents() []string {
	return append([]string(nil), defaultUserAgents...)
}

func DefaultViewports() []string {
	return append([]string(nil), defaultViewports...)
}

// PickOne returns a random element, or "" for an empty list.
func PickOne(rng *rand.Rand, values []string) string {
	if len(values) == 0 {
		return ""
	}
	if rng == nil {
		return values[rand.IntN(len(values))]
	}
	return values[rng.IntN(len(values))]
}
