package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited paths are probed by load balancers and scrapers.
var unlimited = map[string]bool{"/health": true, "/metrics": true}

// MatchEndpoint returns the configuration for a request, or nil when the
// default limit applies. Exact matches win over prefix matches; a config path
// ending in "/" matches every path below it. A zero Limit means unlimited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == http.MethodGet && unlimited[path] {
		return &EndpointConfig{Path: path, Method: method}
	}

	var prefix *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if prefix == nil && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			prefix = c
		}
	}
	return prefix
}
