// Package auth provides API key authentication for kofn-server.
//
// APIKeyInterceptor and APIKeyStreamInterceptor guard the gRPC health
// service; HTTPMiddleware guards the REST API and the WebSocket stream.
// All three read the key from the configured header and compare it in
// constant time.
//
// When mode != "apikey" or key == "", all calls pass through (useful for local
// development with auth disabled). When the key is incorrect or absent, gRPC
// calls fail with codes.Unauthenticated and HTTP requests with 401.
package auth
