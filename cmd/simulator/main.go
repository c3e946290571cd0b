package main

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
	"frta-simulation/internal/metrics"
	"frta-simulation/internal/network"
	"frta-simulation/internal/node"
	"frta-simulation/internal/sim"
)

// Two neighbours on a quiet channel. A's first datagram misses the cache
// and floods a route request; B answers and learns the reverse route; the
// periodic advertisements then hand A a route to B, and the retry lands.
func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	sched := sim.NewScheduler()
	bus := eb.NewBus()
	coll := metrics.NewCollector()
	coll.Attach(bus)
	net := network.New(sched, sched, bus, network.WithRange(1000))
	rng := rand.New(rand.NewSource(42))

	addrA := mesh.AddrFrom(10, 1, 1, 1)
	addrB := mesh.AddrFrom(10, 1, 1, 2)

	nodeA := node.New(addrA, mesh.CreateCoordinates(0, 0), sched, sched, rng, bus, 3*time.Second)
	nodeB := node.New(addrB, mesh.CreateCoordinates(600, 0), sched, sched, rng, bus, 3*time.Second)

	// Stagger the joins so the startup broadcasts do not collide.
	for i, n := range []*node.Node{nodeA, nodeB} {
		n := n
		sched.Schedule(time.Duration(i)*400*time.Millisecond, func() {
			n.Attach(net)
			if err := n.Start(); err != nil {
				log.Fatalf("start %s: %v", n.PrimaryAddr(), err)
			}
		})
	}

	nodeB.Received = func(dg mesh.Datagram) {
		fmt.Printf("B received %q from %s at t=%s\n", dg.Payload, dg.Src, sched.Now())
	}

	for _, delay := range []time.Duration{time.Second, 7 * time.Second, 9 * time.Second} {
		sched.Schedule(delay, func() {
			if err := nodeA.SendData(addrB, []byte("SensorReading=123")); err != nil {
				log.Printf("A -> B: %v (discovery underway, retrying later)", err)
			}
		})
	}

	sched.RunUntil(12 * time.Second)

	if route, err := nodeA.Protocol().RouteOutput(addrB); err == nil {
		fmt.Printf("A routes to %s via %s\n", route.Destination, route.Gateway)
	} else {
		fmt.Printf("A still has no route to B: %v\n", err)
	}
	fmt.Printf("A trusts B at %.2f\n", nodeA.Protocol().Trust().Get(addrB))
	fmt.Printf("B's route to A: ")
	if e, ok := nodeB.Protocol().Store().GetRoute(addrA); ok {
		fmt.Printf("via %s (trust %.2f, hops %d)\n", e.NextHop, e.Trust, e.HopCount)
	} else {
		fmt.Println("none")
	}

	snap := coll.Snapshot()
	fmt.Printf("requests=%d replies=%d adverts=%d delivered=%d\n",
		snap.RequestsSent, snap.RepliesReceived, snap.AdvertisementsAccepted, snap.DataDelivered)
}
