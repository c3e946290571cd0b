// Package node ties one FRTA protocol instance to the simulated network:
// it owns the control socket on port 9, dispatches inbound datagrams, and
// originates application traffic on port 10.
package node

import (
	"errors"
	"log"
	"math/rand"
	"time"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/frta"
	"frta-simulation/internal/mesh"
)

// Node is one participant: protocol plus application endpoint.
type Node struct {
	addrs []mesh.Addr
	pos   mesh.Coordinates

	net   mesh.INetwork
	bus   *eb.Bus
	clock mesh.Clock

	proto *frta.Protocol

	// Received applies to application payloads delivered locally.
	Received func(dg mesh.Datagram)
}

// New builds a node with a single interface address at pos. The node must
// be attached to a network before the protocol starts.
func New(addr mesh.Addr, pos mesh.Coordinates, clock mesh.Clock, sched mesh.Scheduler, rng *rand.Rand, bus *eb.Bus, updateInterval time.Duration) *Node {
	n := &Node{
		addrs: []mesh.Addr{addr},
		pos:   pos,
		bus:   bus,
		clock: clock,
	}
	cfg := frta.Config{Addrs: n.addrs, UpdateInterval: updateInterval}
	n.proto = frta.New(cfg, (*controlTransport)(n), clock, sched, rng, bus)
	return n
}

// Attach binds the node to its network and joins it.
func (n *Node) Attach(net mesh.INetwork) {
	n.net = net
	net.Join(n)
}

// Start brings the protocol up.
func (n *Node) Start() error {
	if n.net == nil {
		return errors.New("node: not attached to a network")
	}
	return n.proto.Start()
}

// Stop winds the protocol down.
func (n *Node) Stop() {
	n.proto.Stop()
}

// Protocol exposes the routing protocol for inspection.
func (n *Node) Protocol() *frta.Protocol { return n.proto }

func (n *Node) PrimaryAddr() mesh.Addr { return n.addrs[0] }

func (n *Node) Addrs() []mesh.Addr { return append([]mesh.Addr(nil), n.addrs...) }

func (n *Node) GetPosition() mesh.Coordinates { return n.pos }

func (n *Node) SetPosition(pos mesh.Coordinates) { n.pos = pos }

// SendData originates an application datagram toward dst. A cache miss
// returns frta.ErrNoRoute after kicking off discovery; the caller retries
// with its next datagram.
func (n *Node) SendData(dst mesh.Addr, payload []byte) error {
	if n.net == nil || !n.proto.Running() {
		return errors.New("node: not running")
	}
	route, err := n.proto.RouteOutput(dst)
	if err != nil {
		return err
	}
	dg := mesh.Datagram{
		Src:     route.Source,
		Dst:     dst,
		Port:    mesh.DataPort,
		Payload: payload,
	}
	n.publish(eb.Event{Type: eb.EventMessageSent, Other: dst, Payload: string(payload)})
	if dst.IsBroadcast() {
		n.net.Broadcast(n, dg)
		return nil
	}
	n.net.Unicast(n, dg, route.Gateway)
	return nil
}

// Deliver dispatches an inbound datagram: control traffic to the protocol's
// receive callback, everything else through RouteInput.
func (n *Node) Deliver(dg mesh.Datagram) {
	if dg.Port == mesh.ControlPort {
		n.proto.ReceiveControl(dg.Payload, dg.Src, dg.Tag)
		return
	}

	err := n.proto.RouteInput(dg,
		func(d mesh.Datagram) {
			log.Printf("[node] %s: delivered %d bytes from %s", n.PrimaryAddr(), len(d.Payload), d.Src)
			n.publish(eb.Event{Type: eb.EventMessageDelivered, Other: d.Src, Payload: string(d.Payload)})
			if n.Received != nil {
				n.Received(d)
			}
		},
		func(d mesh.Datagram, nextHop mesh.Addr) {
			log.Printf("[node] %s: forwarding datagram for %s via %s", n.PrimaryAddr(), d.Dst, nextHop)
			n.net.Unicast(n, d, nextHop)
		},
	)
	if err != nil {
		n.publish(eb.Event{Type: eb.EventMessageLost, Other: dg.Dst, Payload: string(dg.Payload)})
	}
}

// ObserveTransmission feeds a receiver-side observation into the collision
// detector.
func (n *Node) ObserveTransmission(sender mesh.Addr, success bool) {
	if sender == n.PrimaryAddr() {
		return
	}
	n.proto.ObserveTransmission(sender, success)
}

// NotifySendResult reports the fate of a transmission this node put on the
// air. Application datagrams feed back into path trust.
func (n *Node) NotifySendResult(dg mesh.Datagram, success bool) {
	if dg.Port != mesh.DataPort {
		return
	}
	n.proto.NotifyDataOutcome(dg.Dst, success)
	if !success {
		n.publish(eb.Event{Type: eb.EventMessageLost, Other: dg.Dst, Payload: string(dg.Payload)})
	}
}

func (n *Node) publish(ev eb.Event) {
	if n.bus == nil {
		return
	}
	ev.Node = n.PrimaryAddr()
	ev.SimTime = n.clock.Now()
	n.bus.Publish(ev)
}

// controlTransport adapts the node into the protocol's send primitive,
// stamping control datagrams with port 9.
type controlTransport Node

func (t *controlTransport) SendTo(dst mesh.Addr, payload []byte, tag *mesh.TrustTag) {
	n := (*Node)(t)
	dg := mesh.Datagram{
		Src:     n.PrimaryAddr(),
		Dst:     dst,
		Port:    mesh.ControlPort,
		Payload: payload,
		Tag:     tag,
	}
	if dst.IsBroadcast() {
		n.net.Broadcast(n, dg)
		return
	}
	n.net.Unicast(n, dg, dst)
}
