// Package store keeps evaluation records in memory.
//
// Records are keyed by their UUID, expire TTL after they were stored and are
// capped at a fixed capacity, dropping the oldest first. Run(ctx) evicts
// expired records in the background.
package store
