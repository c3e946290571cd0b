// Package frta implements the Fault-Resilient, Trust-Aware reactive routing
// protocol for mobile ad-hoc networks: on-demand route discovery over
// flooded requests, periodic advertisement of cached routes, a reputational
// trust model and collision-aware path selection.
package frta

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"frta-simulation/internal/collision"
	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
	"frta-simulation/internal/state"
	"frta-simulation/internal/trust"
	"frta-simulation/internal/wire"
)

const (
	// RouteRequestTimeout bounds how long a discovery stays pending.
	RouteRequestTimeout = 2 * time.Second
	// RouteCacheTimeout is the freshness window of a cache entry and the
	// period of the cleanup sweep.
	RouteCacheTimeout = 30 * time.Second
	// DefaultUpdateInterval is the period of advertisements and trust
	// updates unless configured otherwise.
	DefaultUpdateInterval = 30 * time.Second
	// MaxHopCount caps request flooding.
	MaxHopCount uint32 = 10
	// MaxPaths caps path enumeration through the cache graph.
	MaxPaths = 5

	// advertTrustFloor filters which cache entries get advertised.
	advertTrustFloor = 0.5
	// collisionTrustFloor marks a next hop risky in DetectCollision.
	collisionTrustFloor = 0.3
	// maxForwardJitterMicros bounds the uniform delay that de-synchronises
	// flooded rebroadcasts and replies.
	maxForwardJitterMicros = 1000
)

// ErrNoRoute reports an outbound lookup with no fresh cache entry. The
// lookup has already kicked off discovery; retrying is the caller's call.
var ErrNoRoute = errors.New("no route to destination")

// Route is the outcome of a successful outbound lookup.
type Route struct {
	Destination mesh.Addr
	Gateway     mesh.Addr
	Source      mesh.Addr
}

// Config carries the per-instance protocol parameters.
type Config struct {
	// Addrs are the local interface addresses; the first is primary.
	Addrs []mesh.Addr
	// UpdateInterval overrides DefaultUpdateInterval when positive.
	UpdateInterval time.Duration
}

// Protocol is one FRTA instance. It is single-threaded cooperative: every
// operation runs to completion on the scheduler thread, and suspension only
// happens through scheduled callbacks.
type Protocol struct {
	addrs          []mesh.Addr
	updateInterval time.Duration
	running        bool

	transport mesh.Transport
	clock     mesh.Clock
	sched     mesh.Scheduler
	rng       *rand.Rand
	bus       *eb.Bus

	store    *state.Store
	trust    *trust.Engine
	detector *collision.Detector

	pendingRequests map[mesh.Addr]struct{}
	requestTime     map[mesh.Addr]time.Duration

	cachedPaths    map[mesh.Addr][][]mesh.Addr
	cachedPathTime map[mesh.Addr]time.Duration
}

// New builds a stopped protocol instance. The bus may be nil in tests that
// do not observe events.
func New(cfg Config, transport mesh.Transport, clock mesh.Clock, sched mesh.Scheduler, rng *rand.Rand, bus *eb.Bus) *Protocol {
	interval := cfg.UpdateInterval
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	store := state.NewStore()
	return &Protocol{
		addrs:           append([]mesh.Addr(nil), cfg.Addrs...),
		updateInterval:  interval,
		transport:       transport,
		clock:           clock,
		sched:           sched,
		rng:             rng,
		bus:             bus,
		store:           store,
		trust:           trust.NewEngine(store),
		detector:        collision.NewDetector(clock),
		pendingRequests: make(map[mesh.Addr]struct{}),
		requestTime:     make(map[mesh.Addr]time.Duration),
		cachedPaths:     make(map[mesh.Addr][][]mesh.Addr),
		cachedPathTime:  make(map[mesh.Addr]time.Duration),
	}
}

// LocalAddr is the primary interface address.
func (p *Protocol) LocalAddr() mesh.Addr {
	if len(p.addrs) == 0 {
		return mesh.Any
	}
	return p.addrs[0]
}

// Addrs lists the local interface addresses.
func (p *Protocol) Addrs() []mesh.Addr {
	return append([]mesh.Addr(nil), p.addrs...)
}

func (p *Protocol) isLocal(a mesh.Addr) bool {
	for _, addr := range p.addrs {
		if addr == a {
			return true
		}
	}
	return false
}

// Store exposes the state store for inspection.
func (p *Protocol) Store() *state.Store { return p.store }

// Trust exposes the trust engine.
func (p *Protocol) Trust() *trust.Engine { return p.trust }

// Detector exposes the collision detector.
func (p *Protocol) Detector() *collision.Detector { return p.detector }

// Running reports the lifecycle state.
func (p *Protocol) Running() bool { return p.running }

// Start brings the instance up: self routes, the first trust update round,
// and the periodic advertisement and cleanup timers. Starting twice is a
// no-op.
func (p *Protocol) Start() error {
	if p.running {
		return nil
	}
	if p.transport == nil {
		return errors.New("frta: no transport bound")
	}
	if len(p.addrs) == 0 {
		return errors.New("frta: no local addresses")
	}
	p.running = true
	p.initialiseRoutingTable()
	p.sendRoutingUpdate()
	p.sched.Schedule(p.updateInterval, p.broadcastAdvertisements)
	p.sched.Schedule(RouteCacheTimeout, p.cleanupRouteCache)
	log.Printf("[frta] %s: started (update interval %s)", p.LocalAddr(), p.updateInterval)
	return nil
}

// Stop winds the instance down and clears all per-node state. Scheduled
// callbacks still fire but become no-ops on the running check.
func (p *Protocol) Stop() {
	if !p.running {
		return
	}
	p.running = false
	p.store.Clear()
	p.pendingRequests = make(map[mesh.Addr]struct{})
	p.requestTime = make(map[mesh.Addr]time.Duration)
	p.cachedPaths = make(map[mesh.Addr][][]mesh.Addr)
	p.cachedPathTime = make(map[mesh.Addr]time.Duration)
	log.Printf("[frta] %s: stopped", p.LocalAddr())
}

// SetUpdateInterval adjusts the advertisement period. Takes effect when the
// next timer rearms.
func (p *Protocol) SetUpdateInterval(d time.Duration) {
	if d > 0 {
		p.updateInterval = d
	}
}

// NotifyInterfaceUp adds a local interface address and installs its self
// route.
func (p *Protocol) NotifyInterfaceUp(addr mesh.Addr) {
	if p.isLocal(addr) {
		return
	}
	p.addrs = append(p.addrs, addr)
	if p.running {
		p.installSelfRoute(addr)
	}
}

// NotifyInterfaceDown removes a local interface address and its self route.
func (p *Protocol) NotifyInterfaceDown(addr mesh.Addr) {
	for i, a := range p.addrs {
		if a == addr {
			p.addrs = append(p.addrs[:i], p.addrs[i+1:]...)
			p.store.RemoveRoute(addr)
			return
		}
	}
}

func (p *Protocol) initialiseRoutingTable() {
	for _, addr := range p.addrs {
		p.installSelfRoute(addr)
	}
}

func (p *Protocol) installSelfRoute(addr mesh.Addr) {
	now := p.clock.Now()
	p.store.AddRoute(addr, state.RouteEntry{
		NextHop:    addr,
		Trust:      1.0,
		LastUpdate: now,
		HopCount:   0,
	})
	p.trust.Set(addr, 1.0)
	p.store.SetNodeActive(addr, true, now)
	p.publish(eb.Event{
		Type:  eb.EventRouteAdded,
		Route: eb.RouteInfo{Destination: addr, NextHop: addr, Trust: 1.0, HopCount: 0},
	})
}

// sendRoutingUpdate broadcasts one empty TRUST_UPDATE per local interface,
// tagged with that interface's trust, then rearms itself.
func (p *Protocol) sendRoutingUpdate() {
	if !p.running {
		return
	}
	var msg wire.TrustUpdate
	payload := msg.Serialise()
	for _, addr := range p.addrs {
		tag := &mesh.TrustTag{Trust: p.trust.Get(addr)}
		p.transport.SendTo(mesh.Broadcast, payload, tag)
		p.publish(eb.Event{Type: eb.EventTrustUpdateSent, Other: addr, Trust: tag.Trust})
	}
	p.sched.Schedule(p.updateInterval, p.sendRoutingUpdate)
}

// broadcastAdvertisements announces every fresh cache entry above the trust
// floor, then rearms itself.
func (p *Protocol) broadcastAdvertisements() {
	if !p.running {
		return
	}
	now := p.clock.Now()
	for _, dest := range p.store.Destinations() {
		e, ok := p.store.GetRoute(dest)
		if !ok {
			continue
		}
		if e.Trust > advertTrustFloor && e.Fresh(now, RouteCacheTimeout) {
			adv := wire.RouteAdvertisement{
				Dest:     dest,
				NextHop:  e.NextHop,
				Trust:    e.Trust,
				HopCount: e.HopCount,
			}
			p.transport.SendTo(mesh.Broadcast, adv.Serialise(), nil)
			p.publish(eb.Event{
				Type:  eb.EventAdvertisementSent,
				Route: eb.RouteInfo{Destination: dest, NextHop: e.NextHop, Trust: e.Trust, HopCount: e.HopCount},
			})
		}
	}
	p.sched.Schedule(p.updateInterval, p.broadcastAdvertisements)
}

// cleanupRouteCache sweeps out entries older than the freshness window,
// then rearms itself.
func (p *Protocol) cleanupRouteCache() {
	if !p.running {
		return
	}
	now := p.clock.Now()
	for _, dest := range p.store.Destinations() {
		if e, ok := p.store.GetRoute(dest); ok && !e.Fresh(now, RouteCacheTimeout) {
			p.store.RemoveRoute(dest)
			p.publish(eb.Event{
				Type:  eb.EventRouteExpired,
				Route: eb.RouteInfo{Destination: dest, NextHop: e.NextHop, Trust: e.Trust, HopCount: e.HopCount},
			})
			log.Printf("[frta] %s: removed expired route to %s", p.LocalAddr(), dest)
		}
	}
	p.sched.Schedule(RouteCacheTimeout, p.cleanupRouteCache)
}

// ReceiveControl is the receive callback for the control socket. Malformed
// input is dropped, counted and logged; nothing here is fatal.
func (p *Protocol) ReceiveControl(payload []byte, sender mesh.Addr, tag *mesh.TrustTag) {
	if !p.running {
		return
	}
	msgType, err := wire.DecodeType(payload)
	if err != nil {
		p.dropMalformed(sender, err)
		return
	}
	p.store.SetNodeActive(sender, true, p.clock.Now())

	switch msgType {
	case wire.TypeRouteRequest:
		var msg wire.RouteRequest
		if err := msg.Deserialise(payload); err != nil {
			p.dropMalformed(sender, err)
			return
		}
		p.handleRouteRequest(&msg, sender)
	case wire.TypeRouteReply:
		var msg wire.RouteReply
		if err := msg.Deserialise(payload); err != nil {
			p.dropMalformed(sender, err)
			return
		}
		p.handleRouteReply(&msg, sender)
	case wire.TypeRouteAdvertisement:
		var msg wire.RouteAdvertisement
		if err := msg.Deserialise(payload); err != nil {
			p.dropMalformed(sender, err)
			return
		}
		p.handleRouteAdvertisement(&msg, sender)
	case wire.TypeTrustUpdate:
		trustVal := 0.5
		if tag != nil {
			trustVal = tag.Trust
		}
		updated := p.trust.Update(sender, trustVal)
		p.publish(eb.Event{Type: eb.EventTrustUpdated, Other: sender, Trust: updated})
	}
}

func (p *Protocol) dropMalformed(sender mesh.Addr, err error) {
	log.Printf("[frta] %s: dropping malformed message from %s: %v", p.LocalAddr(), sender, err)
	p.publish(eb.Event{Type: eb.EventMalformedMessage, Other: sender})
}

func (p *Protocol) publish(ev eb.Event) {
	if p.bus == nil {
		return
	}
	ev.Node = p.LocalAddr()
	ev.SimTime = p.clock.Now()
	p.bus.Publish(ev)
}

// forwardJitter picks a uniform delay in [0, 1000] microseconds.
func (p *Protocol) forwardJitter() time.Duration {
	return time.Duration(p.rng.Intn(maxForwardJitterMicros+1)) * time.Microsecond
}

func (p *Protocol) errNoRoute(dest mesh.Addr) error {
	return fmt.Errorf("%w: %s", ErrNoRoute, dest)
}
