package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/jiralink/internal/handlers"
)

// methodRoutes maps HTTP methods to the handlers of a single path
type methodRoutes map[string]http.HandlerFunc

// serve dispatches by method. Unlisted methods get a JSON 405 with an Allow header.
func (m methodRoutes) serve(w http.ResponseWriter, r *http.Request) {
	if handler, ok := m[r.Method]; ok {
		handler(w, r)
		return
	}

	allowed := make([]string, 0, len(m))
	for method := range m {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// suffixRoute handles /prefix/{id}/suffix paths
type suffixRoute struct {
	suffix  string
	handler http.HandlerFunc
}

// routeBySuffix dispatches a path under prefix to the route whose suffix it ends with.
// The part between prefix and suffix must be a single non-empty segment.
// Returns false when nothing matched.
func routeBySuffix(w http.ResponseWriter, r *http.Request, prefix string, routes []suffixRoute) bool {
	rest, ok := strings.CutPrefix(r.URL.Path, prefix)
	if !ok {
		return false
	}

	for _, route := range routes {
		id, found := strings.CutSuffix(rest, route.suffix)
		if found && id != "" && !strings.Contains(id, "/") {
			route.handler(w, r)
			return true
		}
	}
	return false
}
