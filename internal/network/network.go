// Package network simulates the shared radio medium: positional nodes, a
// maximum reception range, an on-air window per transmission, and overlap
// collisions that drop frames. Delivery happens through the discrete-event
// scheduler, so the whole simulation stays single-threaded.
package network

import (
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
)

const (
	// DefaultMaxRange is the reception range in metres.
	DefaultMaxRange = 1000.0
	// DefaultAirTime is how long a single transmission occupies the air.
	DefaultAirTime = 5 * time.Millisecond
)

// transmission is one frame currently on the air.
type transmission struct {
	id       uuid.UUID
	dg       mesh.Datagram
	sender   mesh.INode
	via      mesh.Addr // zero for broadcast
	start    time.Duration
	end      time.Duration
	collided bool
}

// Network implements mesh.INetwork over the event scheduler.
type Network struct {
	clock mesh.Clock
	sched mesh.Scheduler
	bus   *eb.Bus

	nodes  map[mesh.Addr]mesh.INode // by primary address
	byAddr map[mesh.Addr]mesh.INode // every interface address

	transmissions map[uuid.UUID]*transmission
	busyUntil     map[mesh.Addr]time.Duration

	maxRange float64
	airTime  time.Duration
}

// Option tweaks the radio model.
type Option func(*Network)

func WithRange(metres float64) Option {
	return func(n *Network) { n.maxRange = metres }
}

func WithAirTime(d time.Duration) Option {
	return func(n *Network) { n.airTime = d }
}

func New(clock mesh.Clock, sched mesh.Scheduler, bus *eb.Bus, opts ...Option) *Network {
	n := &Network{
		clock:         clock,
		sched:         sched,
		bus:           bus,
		nodes:         make(map[mesh.Addr]mesh.INode),
		byAddr:        make(map[mesh.Addr]mesh.INode),
		transmissions: make(map[uuid.UUID]*transmission),
		busyUntil:     make(map[mesh.Addr]time.Duration),
		maxRange:      DefaultMaxRange,
		airTime:       DefaultAirTime,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Join adds a node to the medium.
func (n *Network) Join(nd mesh.INode) {
	n.nodes[nd.PrimaryAddr()] = nd
	for _, a := range nd.Addrs() {
		n.byAddr[a] = nd
	}
	log.Printf("[network] node %s joined", nd.PrimaryAddr())
	n.publish(eb.Event{Type: eb.EventNodeJoined, Node: nd.PrimaryAddr()})
}

// Leave removes the node owning addr.
func (n *Network) Leave(addr mesh.Addr) {
	nd, ok := n.byAddr[addr]
	if !ok {
		return
	}
	delete(n.nodes, nd.PrimaryAddr())
	for _, a := range nd.Addrs() {
		delete(n.byAddr, a)
	}
	log.Printf("[network] node %s left", nd.PrimaryAddr())
	n.publish(eb.Event{Type: eb.EventNodeLeft, Node: nd.PrimaryAddr()})
}

// Lookup finds the node owning addr.
func (n *Network) Lookup(addr mesh.Addr) (mesh.INode, bool) {
	nd, ok := n.byAddr[addr]
	return nd, ok
}

// Broadcast puts dg on the air for every node in range of the sender.
func (n *Network) Broadcast(sender mesh.INode, dg mesh.Datagram) {
	n.transmit(sender, dg, mesh.Any)
}

// Unicast puts dg on the air addressed to the node owning via.
func (n *Network) Unicast(sender mesh.INode, dg mesh.Datagram, via mesh.Addr) {
	n.transmit(sender, dg, via)
}

func (n *Network) transmit(sender mesh.INode, dg mesh.Datagram, via mesh.Addr) {
	now := n.clock.Now()
	// A radio sends one frame at a time; back-to-back sends queue behind
	// the frame already on the air.
	start := now
	if busy := n.busyUntil[sender.PrimaryAddr()]; busy > start {
		start = busy
	}
	end := start + n.airTime
	n.busyUntil[sender.PrimaryAddr()] = end

	tx := &transmission{
		id:     uuid.New(),
		dg:     dg,
		sender: sender,
		via:    via,
		start:  start,
		end:    end,
	}
	n.transmissions[tx.id] = tx

	// Partial on-air overlap between senders close enough to interfere
	// ruins both frames.
	for _, ongoing := range n.transmissions {
		if ongoing == tx || ongoing.sender == tx.sender {
			continue
		}
		if n.overlap(tx, ongoing) && n.canInterfere(sender, ongoing.sender) {
			ongoing.collided = true
			tx.collided = true
			log.Printf("[network] collision between %s and %s",
				sender.PrimaryAddr(), ongoing.sender.PrimaryAddr())
		}
	}

	n.sched.Schedule(end-now, func() { n.complete(tx) })
}

func (n *Network) complete(tx *transmission) {
	delete(n.transmissions, tx.id)

	if tx.collided {
		n.publish(eb.Event{Type: eb.EventCollision, Node: tx.sender.PrimaryAddr()})
		// Everyone who would have heard the frame observed the loss.
		for _, nd := range n.receiversInRange(tx) {
			nd.ObserveTransmission(tx.sender.PrimaryAddr(), false)
		}
		tx.sender.NotifySendResult(tx.dg, false)
		return
	}

	receivers := n.receiversInRange(tx)
	if len(receivers) == 0 {
		log.Printf("[network] node %s: nobody in range for %s", tx.sender.PrimaryAddr(), tx.dg.Dst)
		tx.sender.NotifySendResult(tx.dg, false)
		return
	}
	for _, nd := range receivers {
		nd.ObserveTransmission(tx.sender.PrimaryAddr(), true)
		nd.Deliver(tx.dg)
	}
	tx.sender.NotifySendResult(tx.dg, true)
}

// receiversInRange resolves who hears the frame: the via node for unicast,
// every other node in range for broadcast.
func (n *Network) receiversInRange(tx *transmission) []mesh.INode {
	if tx.via != mesh.Any {
		nd, ok := n.byAddr[tx.via]
		if !ok {
			log.Printf("[network] node %s sent to unknown node %s",
				tx.sender.PrimaryAddr(), tx.via)
			return nil
		}
		if !n.inRange(tx.sender, nd) {
			log.Printf("[network] node %s is out of range of %s",
				tx.via, tx.sender.PrimaryAddr())
			return nil
		}
		return []mesh.INode{nd}
	}
	// Deterministic delivery order: address order, not map order.
	addrs := make([]mesh.Addr, 0, len(n.nodes))
	for addr := range n.nodes {
		if addr != tx.sender.PrimaryAddr() {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	var out []mesh.INode
	for _, addr := range addrs {
		if nd := n.nodes[addr]; n.inRange(tx.sender, nd) {
			out = append(out, nd)
		}
	}
	return out
}

func (n *Network) overlap(a, b *transmission) bool {
	return a.start < b.end && b.start < a.end
}

// Senders further apart than twice the reception range cannot interfere.
func (n *Network) canInterfere(a, b mesh.INode) bool {
	return a.GetPosition().DistanceTo(b.GetPosition()) <= 2*n.maxRange
}

func (n *Network) inRange(a, b mesh.INode) bool {
	return a.GetPosition().DistanceTo(b.GetPosition()) <= n.maxRange
}

func (n *Network) publish(ev eb.Event) {
	if n.bus == nil {
		return
	}
	if ev.SimTime == 0 {
		ev.SimTime = n.clock.Now()
	}
	n.bus.Publish(ev)
}
