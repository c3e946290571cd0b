package frta

import (
	"log"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
)

// RouteOutput maps an outbound destination to a next hop. Broadcast
// destinations route with a zero gateway. A cache miss kicks off discovery
// (unless one is already pending) and returns ErrNoRoute.
func (p *Protocol) RouteOutput(dest mesh.Addr) (Route, error) {
	if dest.IsBroadcast() {
		return Route{Destination: dest, Gateway: mesh.Any, Source: p.LocalAddr()}, nil
	}
	if e, ok := p.store.GetRoute(dest); ok && e.Fresh(p.clock.Now(), RouteCacheTimeout) {
		return Route{Destination: dest, Gateway: e.NextHop, Source: p.LocalAddr()}, nil
	}
	if _, pending := p.pendingRequests[dest]; !pending {
		log.Printf("[frta] %s: initiating route discovery for %s", p.LocalAddr(), dest)
		p.SendRouteRequest(dest)
	}
	p.publish(eb.Event{Type: eb.EventNoRoute, Other: dest})
	return Route{}, p.errNoRoute(dest)
}

// RouteInput handles a received datagram: deliver locally destined (or
// broadcast) traffic, forward through a fresh cache entry, or fail with
// ErrNoRoute.
func (p *Protocol) RouteInput(dg mesh.Datagram, deliver func(mesh.Datagram), forward func(mesh.Datagram, mesh.Addr)) error {
	if dg.Dst.IsBroadcast() || p.isLocal(dg.Dst) {
		deliver(dg)
		return nil
	}
	if e, ok := p.store.GetRoute(dg.Dst); ok && e.Fresh(p.clock.Now(), RouteCacheTimeout) {
		forward(dg, e.NextHop)
		return nil
	}
	p.publish(eb.Event{Type: eb.EventNoRoute, Other: dg.Dst})
	return p.errNoRoute(dg.Dst)
}

// FindAllPaths enumerates up to MaxPaths paths from source to dest through
// the cache graph, where the neighbours of every node are the currently
// known destinations. A visited set prevents cycles. Results are cached per
// destination for one freshness window.
func (p *Protocol) FindAllPaths(source, dest mesh.Addr) [][]mesh.Addr {
	now := p.clock.Now()
	if t, ok := p.cachedPathTime[dest]; ok && now-t < RouteCacheTimeout {
		if paths, ok := p.cachedPaths[dest]; ok {
			return paths
		}
	}

	neighbours := p.store.Destinations()
	var paths [][]mesh.Addr

	// Depth-first exploration with an explicit stack; a frame's index
	// tracks the next neighbour to try.
	type frame struct {
		node mesh.Addr
		next int
	}
	visited := make(map[mesh.Addr]bool)
	var current []mesh.Addr
	stack := []frame{{node: source}}

	for len(stack) > 0 && len(paths) < MaxPaths {
		f := &stack[len(stack)-1]
		if f.next == 0 {
			current = append(current, f.node)
			visited[f.node] = true
			if f.node == dest {
				paths = append(paths, append([]mesh.Addr(nil), current...))
				f.next = len(neighbours)
			}
		}
		descended := false
		for f.next < len(neighbours) {
			nb := neighbours[f.next]
			f.next++
			if !visited[nb] {
				stack = append(stack, frame{node: nb})
				descended = true
				break
			}
		}
		if descended {
			continue
		}
		visited[f.node] = false
		current = current[:len(current)-1]
		stack = stack[:len(stack)-1]
	}

	p.cachedPaths[dest] = paths
	p.cachedPathTime[dest] = now
	return paths
}

// SelectTrustedPath returns a full path from source to dest: the direct
// cached route when fresh, otherwise the enumerated path with the highest
// path trust. Empty when nothing qualifies.
func (p *Protocol) SelectTrustedPath(source, dest mesh.Addr) []mesh.Addr {
	if e, ok := p.store.GetRoute(dest); ok && e.Fresh(p.clock.Now(), RouteCacheTimeout) {
		return []mesh.Addr{source, e.NextHop, dest}
	}

	var best []mesh.Addr
	bestTrust := -1.0
	for _, path := range p.FindAllPaths(source, dest) {
		if t := p.trust.PathTrust(path); t > bestTrust {
			bestTrust = t
			best = path
		}
	}
	return best
}

// SelectOptimalPath picks the candidate path with the lowest aggregated
// collision probability.
func (p *Protocol) SelectOptimalPath(paths [][]mesh.Addr) []mesh.Addr {
	return p.detector.SelectOptimalPath(paths)
}

// PathTrust is the minimum member trust along path.
func (p *Protocol) PathTrust(path []mesh.Addr) float64 {
	return p.trust.PathTrust(path)
}

// IsPathTrusted reports whether path clears the trust floor.
func (p *Protocol) IsPathTrusted(path []mesh.Addr) bool {
	return p.trust.IsPathTrusted(path)
}

// UpdatePathTrust folds a delivery outcome into every path member's trust
// and transmission statistics, and refreshes the cached path trust.
func (p *Protocol) UpdatePathTrust(path []mesh.Addr, success bool) {
	if len(path) == 0 {
		return
	}
	updated := p.trust.UpdatePathTrust(path, success)
	for _, member := range path {
		p.detector.UpdateTransmission(member, success)
	}
	p.publish(eb.Event{Type: eb.EventPathTrustUpdated, Trust: updated})
}

// DetectCollision flags nextHop as a risky forwarder, either by low trust
// or by the collision detector's estimate for the link back to us.
func (p *Protocol) DetectCollision(nextHop mesh.Addr) bool {
	if p.trust.Get(nextHop) < collisionTrustFloor {
		return true
	}
	return p.detector.DetectPotential(nextHop, p.LocalAddr())
}

// ObserveTransmission records a receiver-side observation of sender. Lost
// transmissions also count against the link from the sender to us.
func (p *Protocol) ObserveTransmission(sender mesh.Addr, success bool) {
	p.detector.UpdateTransmission(sender, success)
	if !success {
		p.detector.RecordLinkCollision(sender, p.LocalAddr())
	}
}

// NotifyDataOutcome reports the fate of a locally originated datagram and
// feeds it back into the trust of the path used.
func (p *Protocol) NotifyDataOutcome(dest mesh.Addr, success bool) {
	if e, ok := p.store.GetRoute(dest); ok {
		p.UpdatePathTrust([]mesh.Addr{p.LocalAddr(), e.NextHop, dest}, success)
	}
}
