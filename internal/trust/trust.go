// Package trust implements the reputational trust model: exponential
// smoothing of per-node observations and path trust derived as the minimum
// over path members.
package trust

import (
	"math"
	"strings"

	"frta-simulation/internal/mesh"
	"frta-simulation/internal/state"
)

const (
	// Alpha weighs a fresh observation against the smoothed history.
	Alpha = 0.7
	// MinTrust and MaxTrust bound smoothed per-node values.
	MinTrust = 0.1
	MaxTrust = 1.0
	// MinPathTrust is the floor below which a path is not trusted.
	MinPathTrust = 0.5

	successReward  = 0.1
	failurePenalty = 0.2
)

// Engine applies the smoothing policy over trust values kept in the state
// store, and caches derived path trusts keyed by the exact node sequence.
type Engine struct {
	store     *state.Store
	pathTrust map[string]float64
}

func NewEngine(store *state.Store) *Engine {
	return &Engine{
		store:     store,
		pathTrust: make(map[string]float64),
	}
}

// Update folds an observed trust value into node's history:
// new = alpha*observed + (1-alpha)*current, clamped to [MinTrust, MaxTrust].
// Unknown nodes start from 0.5. Returns the stored result.
func (e *Engine) Update(node mesh.Addr, observed float64) float64 {
	current := e.store.GetTrust(node)
	smoothed := Alpha*observed + (1-Alpha)*current
	smoothed = math.Max(MinTrust, math.Min(MaxTrust, smoothed))
	e.store.UpdateTrust(node, smoothed)
	return smoothed
}

// Get returns the current trust for node, 0.5 when unknown.
func (e *Engine) Get(node mesh.Addr) float64 {
	return e.store.GetTrust(node)
}

// Set stores a trust value directly, bypassing smoothing. Used for local
// interfaces at protocol start.
func (e *Engine) Set(node mesh.Addr, trust float64) {
	e.store.UpdateTrust(node, trust)
}

// PathTrust is the minimum member trust along path; an empty path has
// trust 0. Results are cached per exact sequence until the next
// UpdatePathTrust touching it.
func (e *Engine) PathTrust(path []mesh.Addr) float64 {
	if len(path) == 0 {
		return 0.0
	}
	key := pathKey(path)
	if v, ok := e.pathTrust[key]; ok {
		return v
	}
	min := 1.0
	for _, node := range path {
		if t := e.store.GetTrust(node); t < min {
			min = t
		}
	}
	e.pathTrust[key] = min
	return min
}

// IsPathTrusted reports whether the path clears the trust floor.
func (e *Engine) IsPathTrusted(path []mesh.Addr) bool {
	if len(path) == 0 {
		return false
	}
	return e.PathTrust(path) >= MinPathTrust
}

// UpdatePathTrust rewards or penalises every member of path after a
// delivery outcome and recomputes the cached path trust. Rewards saturate
// at 1.0, penalties at 0.0.
func (e *Engine) UpdatePathTrust(path []mesh.Addr, success bool) float64 {
	if len(path) == 0 {
		return 0.0
	}
	for _, node := range path {
		t := e.store.GetTrust(node)
		if success {
			t = math.Min(1.0, t+successReward)
		} else {
			t = math.Max(0.0, t-failurePenalty)
		}
		e.store.UpdateTrust(node, t)
	}
	delete(e.pathTrust, pathKey(path))
	return e.PathTrust(path)
}

func pathKey(path []mesh.Addr) string {
	var b strings.Builder
	for i, a := range path {
		if i > 0 {
			b.WriteByte('>')
		}
		b.WriteString(a.String())
	}
	return b.String()
}
