// Package types defines shared Go types used by both the planner CLI and the
// server: the parameters of a k-out-of-n repairable system, the cost model
// used by the optimizer, and the standby mode of idle components.
//
// These are the canonical in-memory representations; JSON and YAML tags make
// them usable directly as request bodies and scenario file sections.
package types
