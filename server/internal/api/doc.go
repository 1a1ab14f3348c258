// Package api implements the HTTP REST API for kofn-server.
//
// New(store, engine, alerts, opts...) returns an http.Handler that serves:
//
//	POST /api/v1/availability     steady-state availability of one configuration
//	POST /api/v1/optimize         cheapest (n, k) over the search grid
//	POST /api/v1/evaluate         both; the record carries evaluation and search
//	GET  /api/v1/evaluations      live records, newest first
//	GET  /api/v1/evaluations/{id} single record; 404 if unknown or stale
//	GET  /api/v1/health           record counts, engine cache stats, alert count
//	GET  /api/v1/alerts           firing and recently resolved alerts
//
// All endpoints respond with Content-Type: application/json. Errors are
// {"error": "..."} with 400 for invalid input, 422 for a degenerate model,
// 429 when the POST rate limit is exhausted and 404/405 for unknown routes.
// An infeasible search is not an error: the record reports feasible=false.
//
// Routing uses chi; JSON types are defined in types.go.
package api
