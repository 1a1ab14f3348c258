package compute

import (
	"log/slog"
	"sync"

	"github.com/obsidianstack/repairstack/pkg/types"
)

// DefaultCacheSize is the number of evaluations an Engine keeps by default.
const DefaultCacheSize = 4096

// Stats is a point-in-time view of an Engine's cache.
type Stats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

// Engine memoizes evaluations keyed by the full parameter set. The solve
// itself runs outside the lock; two goroutines missing on the same key both
// compute it and the second store is a no-op.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	capacity int
	cache    map[types.Parameters]Evaluation
	order    []types.Parameters // insertion order, oldest first
	hits     uint64
	misses   uint64
}

// NewEngine returns an Engine holding at most capacity evaluations. A
// capacity <= 0 selects DefaultCacheSize.
func NewEngine(capacity int) *Engine {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Engine{
		capacity: capacity,
		cache:    make(map[types.Parameters]Evaluation, capacity),
	}
}

// Evaluate returns the evaluation for p, solving the chain on a cache miss.
// The returned distribution is a private copy.
func (e *Engine) Evaluate(p types.Parameters) (Evaluation, error) {
	e.mu.Lock()
	if ev, ok := e.cache[p]; ok {
		e.hits++
		e.mu.Unlock()
		return ev.clone(), nil
	}
	e.misses++
	e.mu.Unlock()

	ev, err := Evaluate(p)
	if err != nil {
		return Evaluation{}, err
	}

	e.mu.Lock()
	e.store(p, ev)
	e.mu.Unlock()
	return ev.clone(), nil
}

// Availability is the memoized counterpart of the package-level Availability.
func (e *Engine) Availability(p types.Parameters) (float64, error) {
	ev, err := e.Evaluate(p)
	if err != nil {
		return 0, err
	}
	return ev.Availability, nil
}

// Optimize runs the package-level Optimize with the Engine's cache as the
// evaluator. Options passed by the caller are applied afterwards.
func (e *Engine) Optimize(base types.Parameters, cost types.CostModel, space Space, opts ...Option) (Result, error) {
	all := append([]Option{WithEvaluator(e.Availability)}, opts...)
	return Optimize(base, cost, space, all...)
}

// Stats returns the current cache counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Hits:     e.hits,
		Misses:   e.misses,
		Size:     len(e.cache),
		Capacity: e.capacity,
	}
}

// Reset drops every cached evaluation. Counters are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[types.Parameters]Evaluation, e.capacity)
	e.order = nil
}

// store must be called with e.mu held.
func (e *Engine) store(p types.Parameters, ev Evaluation) {
	if _, ok := e.cache[p]; ok {
		return
	}
	if len(e.order) >= e.capacity {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.cache, oldest)
		slog.Debug("compute: evicted cached evaluation",
			"components", oldest.Components, "repair_crew", oldest.RepairCrew)
	}
	e.cache[p] = ev.clone()
	e.order = append(e.order, p)
}
