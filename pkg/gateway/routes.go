package gateway

import (
	"sort"
	"strings"

	"github.com/manifesto-gateway/core/pkg/config"
)

// RouteTable resolves a request path to its configured backend by longest
// prefix match.
type RouteTable struct {
	routes []config.RouteConfig // sorted by descending PathPrefix length
}

// NewRouteTable builds a RouteTable from cfg, pre-sorting for longest-prefix
// matching.
func NewRouteTable(routes []config.RouteConfig) *RouteTable {
	sorted := make([]config.RouteConfig, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})
	return &RouteTable{routes: sorted}
}

// Match returns the most specific route whose prefix matches path, or nil.
func (t *RouteTable) Match(path string) *config.RouteConfig {
	for i := range t.routes {
		r := &t.routes[i]
		if strings.HasPrefix(path, r.PathPrefix) {
			return r
		}
	}
	return nil
}

// All returns the configured routes, most specific first.
func (t *RouteTable) All() []config.RouteConfig {
	return t.routes
}
