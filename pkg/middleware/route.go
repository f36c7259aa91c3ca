package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// routePattern returns the matched chi route pattern, or "unmatched" when
// the request did not go through a chi router or matched nothing.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseStatus returns the status written through ww. A hijacked
// WebSocket upgrade never writes through ww and reports 101.
func responseStatus(ww chimw.WrapResponseWriter, r *http.Request) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}
