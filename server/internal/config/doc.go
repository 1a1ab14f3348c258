// Package config loads the server configuration from the `server:` section of
// the config file.
//
// Config fields:
//   - GRPCPort          port of the gRPC health service (default 50051)
//   - HTTPPort          port of the REST API, /metrics and /ws/stream (default 8080)
//   - LogLevel          debug | info | warn | error (default info)
//   - Auth              mode apikey|none, key_env, header (default "x-api-key")
//   - Results           record ttl (30m) and capacity (1000)
//   - Search            default n/k margins, max_grid and max_components
//   - Engine.CacheSize  evaluation cache entries
//   - RateLimit         rps/burst token bucket for POST endpoints (20/40)
//   - Alerts            rules and webhooks
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on every write; the server uses
// it to swap alert rules and search limits without a restart.
package config
