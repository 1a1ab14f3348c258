// Package config loads and watches planner scenario files.
//
// A scenario file describes one k-out-of-n system and the cost model used to
// size it:
//
//	name: pump-station
//	scenario:
//	  failure_rate: 0.01
//	  repair_rate: 0.1
//	  standby: warm        # warm | cold
//	  components: 5
//	  required: 3
//	  repair_crew: 2
//	costs:
//	  component_cost: 5
//	  repairman_cost: 10
//	  downtime_cost: 1000
//	search:
//	  n_margin: 99         # n in [required, components+n_margin]
//	  k_margin: 9          # k in [1, repair_crew+k_margin]
//	  n_min: 0             # explicit bounds override the margins when > 0
//	  n_max: 0
//	  k_min: 0
//	  k_max: 0
//	  max_grid: 250000     # pairs; checked before the grid is built
//	  max_components: 10000
//
// Load(path) reads the YAML file on top of Default() and validates the
// result. Watch(ctx, path, onChange) uses pkg/watch to call onChange
// with the freshly loaded Config after every change, keeping the previous one
// when a reload fails.
package config
