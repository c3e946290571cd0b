// Package state is the in-memory state store for one FRTA instance: the
// route cache, per-node trust values and per-node active flags. It is a pure
// container with no background behaviour; timers and policy live in the
// protocol.
package state

import (
	"sort"
	"time"

	"frta-simulation/internal/mesh"
)

// RouteEntry is one destination in the route cache. A self entry has
// NextHop equal to the destination and HopCount zero; every other entry has
// HopCount of at least one.
type RouteEntry struct {
	NextHop    mesh.Addr
	Trust      float64
	LastUpdate time.Duration
	HopCount   uint32
}

// Fresh reports whether the entry was refreshed within timeout of now.
func (e RouteEntry) Fresh(now, timeout time.Duration) bool {
	return now-e.LastUpdate < timeout
}

// Store holds the mutable routing state.
type Store struct {
	routes     map[mesh.Addr]RouteEntry
	trust      map[mesh.Addr]float64
	active     map[mesh.Addr]bool
	lastUpdate time.Duration
}

func NewStore() *Store {
	return &Store{
		routes: make(map[mesh.Addr]RouteEntry),
		trust:  make(map[mesh.Addr]float64),
		active: make(map[mesh.Addr]bool),
	}
}

// AddRoute inserts or replaces the cache entry for dest. The entry's trust
// is clamped to [0, 1] on write.
func (s *Store) AddRoute(dest mesh.Addr, e RouteEntry) {
	e.Trust = clamp(e.Trust, 0.0, 1.0)
	s.routes[dest] = e
}

func (s *Store) RemoveRoute(dest mesh.Addr) {
	delete(s.routes, dest)
}

func (s *Store) GetRoute(dest mesh.Addr) (RouteEntry, bool) {
	e, ok := s.routes[dest]
	return e, ok
}

// Destinations lists every cached destination in address order, so that
// iteration over the cache is deterministic.
func (s *Store) Destinations() []mesh.Addr {
	dests := make([]mesh.Addr, 0, len(s.routes))
	for d := range s.routes {
		dests = append(dests, d)
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i] < dests[j] })
	return dests
}

func (s *Store) RouteCount() int {
	return len(s.routes)
}

// UpdateTrust stores a trust value for node, clamped to [0, 1].
func (s *Store) UpdateTrust(node mesh.Addr, trust float64) {
	s.trust[node] = clamp(trust, 0.0, 1.0)
}

// GetTrust returns the stored trust for node, defaulting to 0.5 for
// unknown peers.
func (s *Store) GetTrust(node mesh.Addr) float64 {
	if t, ok := s.trust[node]; ok {
		return t
	}
	return 0.5
}

// SetNodeActive flags node as active or inactive and stamps the store's
// last-update time.
func (s *Store) SetNodeActive(node mesh.Addr, active bool, now time.Duration) {
	s.active[node] = active
	s.lastUpdate = now
}

func (s *Store) IsNodeActive(node mesh.Addr) bool {
	return s.active[node]
}

// GetActiveNodes lists the nodes currently flagged active, in address order.
func (s *Store) GetActiveNodes() []mesh.Addr {
	nodes := make([]mesh.Addr, 0, len(s.active))
	for n, on := range s.active {
		if on {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

func (s *Store) LastUpdate() time.Duration {
	return s.lastUpdate
}

// Clear drops all routes, trust values and active flags.
func (s *Store) Clear() {
	s.routes = make(map[mesh.Addr]RouteEntry)
	s.trust = make(map[mesh.Addr]float64)
	s.active = make(map[mesh.Addr]bool)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
