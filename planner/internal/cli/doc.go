// Package cli builds the kofn command tree.
//
// Commands:
//   - availability  steady-state availability of one configuration
//   - optimize      cheapest (n, k) over the search grid
//   - evaluate      both of the above (the default command)
//   - watch         re-run evaluate whenever the --scenario file changes
//
// Inputs are resolved in increasing precedence: built-in defaults, the
// --scenario YAML file, KOFN_* environment variables, explicit flags.
//
// With --server set, scenarios are evaluated by a kofn-server instead of
// in-process; the output is the same.
package cli
