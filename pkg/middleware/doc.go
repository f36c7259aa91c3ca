// Package middleware provides net/http middleware for the server's HTTP
// surface: the WebSocket upgrade endpoint and the operator endpoints.
//
// Both middlewares are chi-compatible (func(http.Handler) http.Handler) and
// label requests by their route pattern rather than the raw path, so
// cardinality stays bounded:
//
//	r := chi.NewRouter()
//	r.Use(middleware.Tracing())
//	r.Use(middleware.Metrics(middleware.WithRegistry(reg)))
//	r.Get("/ws", serveWS)
//
// # Metrics
//
//	ihi_http_requests_total{route, code}
//	ihi_http_request_duration_seconds{route}
//
// # Tracing
//
// Tracing uses the global OpenTelemetry tracer provider. Configure it in
// main before starting the server:
//
//	otel.SetTracerProvider(tp)
package middleware
