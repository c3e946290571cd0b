package frta

import (
	"log"
	"time"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
	"frta-simulation/internal/state"
	"frta-simulation/internal/wire"
)

// SendRouteRequest originates discovery for dest: a hop-zero request is
// broadcast, the destination is marked pending, and a timeout is scheduled.
// The timeout does not retry; retrying is the caller's decision on the next
// datagram.
func (p *Protocol) SendRouteRequest(dest mesh.Addr) {
	msg := wire.RouteRequest{Dest: dest, Source: p.LocalAddr(), HopCount: 0}
	p.transport.SendTo(mesh.Broadcast, msg.Serialise(), nil)

	p.pendingRequests[dest] = struct{}{}
	p.requestTime[dest] = p.clock.Now()

	log.Printf("[frta] %s: broadcasting route request for %s", p.LocalAddr(), dest)
	p.publish(eb.Event{Type: eb.EventRequestSent, Other: dest})

	p.sched.Schedule(RouteRequestTimeout, func() { p.handleRequestTimeout(dest) })
}

// handleRequestTimeout cleans a still-pending discovery. It is a no-op when
// a reply already satisfied the request.
func (p *Protocol) handleRequestTimeout(dest mesh.Addr) {
	if !p.running {
		return
	}
	if _, ok := p.pendingRequests[dest]; !ok {
		return
	}
	delete(p.pendingRequests, dest)
	delete(p.requestTime, dest)
	log.Printf("[frta] %s: route request timeout for %s (pending=%d cache=%d)",
		p.LocalAddr(), dest, len(p.pendingRequests), p.store.RouteCount())
	p.publish(eb.Event{Type: eb.EventRequestTimeout, Other: dest})
}

// handleRouteRequest ingests a flooded request: install the reverse route,
// answer when we are (or know a fresh route to) the destination, otherwise
// rebroadcast with an incremented hop count after a small jitter.
func (p *Protocol) handleRouteRequest(msg *wire.RouteRequest, sender mesh.Addr) {
	// Our own flood coming back around.
	if p.isLocal(msg.Source) {
		return
	}
	now := p.clock.Now()

	// Reverse route to the request's source via the node we heard it from.
	p.store.AddRoute(msg.Source, state.RouteEntry{
		NextHop:    sender,
		Trust:      0.7,
		LastUpdate: now,
		HopCount:   msg.HopCount + 1,
	})
	p.trust.Update(sender, 0.7)
	p.publish(eb.Event{
		Type:  eb.EventRouteAdded,
		Other: sender,
		Route: eb.RouteInfo{Destination: msg.Source, NextHop: sender, Trust: 0.7, HopCount: msg.HopCount + 1},
	})

	if p.isLocal(msg.Dest) {
		log.Printf("[frta] %s: request arrived at destination, replying to %s via %s",
			p.LocalAddr(), msg.Source, sender)
		p.sendRouteReply(msg.Source, sender, p.trust.Get(sender))
		return
	}

	if e, ok := p.store.GetRoute(msg.Dest); ok && e.Fresh(now, RouteCacheTimeout) {
		log.Printf("[frta] %s: cached route to %s via %s, replying to %s",
			p.LocalAddr(), msg.Dest, e.NextHop, msg.Source)
		p.sendRouteReply(msg.Source, sender, e.Trust)
		return
	}

	if msg.HopCount < MaxHopCount {
		fwd := wire.RouteRequest{Dest: msg.Dest, Source: msg.Source, HopCount: msg.HopCount + 1}
		p.sched.Schedule(p.forwardJitter(), func() {
			if !p.running {
				return
			}
			p.transport.SendTo(mesh.Broadcast, fwd.Serialise(), nil)
			p.publish(eb.Event{Type: eb.EventRequestForwarded, Other: fwd.Dest})
		})
	}
}

// sendRouteReply schedules a unicast reply to `to` through `via` after a
// small jitter, carrying trustVal.
func (p *Protocol) sendRouteReply(to, via mesh.Addr, trustVal float64) {
	msg := wire.RouteReply{Dest: to, NextHop: via, Trust: trustVal}
	p.sched.Schedule(p.forwardJitter(), func() {
		if !p.running {
			return
		}
		p.transport.SendTo(via, msg.Serialise(), nil)
		p.publish(eb.Event{Type: eb.EventReplySent, Other: to, Trust: trustVal})
	})
}

// handleRouteReply ingests a reply: fold the carried trust into both the
// relay and the advertised next hop, install the route with the relay as
// next hop, propagate the reply backwards when we are not its final
// destination, and close any pending request.
//
// The install unconditionally records hop count 1 even when the relay is an
// intermediate rather than the true last hop; later replies overwrite it,
// and an advertisement replaces it only when it carries higher trust and a
// hop count of zero.
func (p *Protocol) handleRouteReply(msg *wire.RouteReply, sender mesh.Addr) {
	p.trust.Update(sender, msg.Trust)
	p.trust.Update(msg.NextHop, msg.Trust)

	now := p.clock.Now()
	p.store.AddRoute(msg.Dest, state.RouteEntry{
		NextHop:    sender,
		Trust:      msg.Trust,
		LastUpdate: now,
		HopCount:   1,
	})
	log.Printf("[frta] %s: route reply from %s installed route to %s (trust %.2f)",
		p.LocalAddr(), sender, msg.Dest, msg.Trust)
	p.publish(eb.Event{
		Type:  eb.EventReplyReceived,
		Other: sender,
		Trust: msg.Trust,
		Route: eb.RouteInfo{Destination: msg.Dest, NextHop: sender, Trust: msg.Trust, HopCount: 1},
	})

	if !p.isLocal(msg.Dest) {
		if e, ok := p.store.GetRoute(msg.Dest); ok && e.Fresh(now, RouteCacheTimeout) && e.NextHop != msg.Dest {
			p.sendRouteReply(msg.Dest, e.NextHop, p.trust.Get(e.NextHop))
		}
	}

	delete(p.pendingRequests, msg.Dest)
	delete(p.requestTime, msg.Dest)
}

// handleRouteAdvertisement replaces the cached entry only when the
// advertised route is strictly better on both axes: higher trust and fewer
// hops. The stored hop count accounts for the hop to the advertiser.
func (p *Protocol) handleRouteAdvertisement(msg *wire.RouteAdvertisement, sender mesh.Addr) {
	existing, ok := p.store.GetRoute(msg.Dest)
	if ok && !(msg.Trust > existing.Trust && msg.HopCount < existing.HopCount) {
		return
	}
	entry := state.RouteEntry{
		NextHop:    msg.NextHop,
		Trust:      msg.Trust,
		LastUpdate: p.clock.Now(),
		HopCount:   msg.HopCount + 1,
	}
	p.store.AddRoute(msg.Dest, entry)
	log.Printf("[frta] %s: advertisement from %s updated route to %s via %s (trust %.2f, hops %d)",
		p.LocalAddr(), sender, msg.Dest, msg.NextHop, msg.Trust, entry.HopCount)
	p.publish(eb.Event{
		Type:  eb.EventAdvertisementAccepted,
		Other: sender,
		Route: eb.RouteInfo{Destination: msg.Dest, NextHop: msg.NextHop, Trust: msg.Trust, HopCount: entry.HopCount},
	})
}

// PendingRequest reports whether discovery for dest is outstanding.
func (p *Protocol) PendingRequest(dest mesh.Addr) bool {
	_, ok := p.pendingRequests[dest]
	return ok
}

// RequestTime returns when the outstanding discovery for dest began.
func (p *Protocol) RequestTime(dest mesh.Addr) (time.Duration, bool) {
	t, ok := p.requestTime[dest]
	return t, ok
}
