// Package middleware provides HTTP middleware for the dashboard server:
// structured request logging, Prometheus metrics, and OpenTelemetry tracing.
//
// All middleware is standard func(http.Handler) http.Handler and composes
// with chi:
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestLogger(logger))
//	r.Use(middleware.Prometheus())
//	r.Use(middleware.OpenTelemetry())
package middleware
