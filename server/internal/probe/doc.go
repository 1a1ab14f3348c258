// Package probe exposes kofn-server's readiness over the standard gRPC
// health checking protocol (grpc.health.v1).
//
// The server registers the Probe on its gRPC listener, calls SetServing once
// the HTTP API is listening and Shutdown when it begins to drain. Both the
// overall status ("") and ServiceName are reported.
package probe
