// Package shipper sends planner scenarios to kofn-server's REST API
// (POST /api/v1/{availability,optimize,evaluate}) and returns the records the
// server stored, so `kofn --server URL` evaluates remotely and the run shows
// up in the server's record list, alerts and metrics.
//
// Client.Ship retries transient failures (connection errors, 5xx, 429) with
// truncated exponential backoff (1s→60s, ±25% jitter). Responses that reject
// the request itself (400, 401, 403, 404, 422) fail immediately; a 400 or 422
// unwraps to the same compute error a local evaluation would return.
//
// Auth: API key in a configurable header, matching the server's auth.mode
// apikey.
package shipper
