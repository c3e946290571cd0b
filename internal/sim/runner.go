package sim

import (
	"log"
	"math"
	"math/rand"
	"time"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
	"frta-simulation/internal/metrics"
	"frta-simulation/internal/network"
	"frta-simulation/internal/node"
)

// Runner builds a node grid from a scenario, injects traffic and drives the
// event scheduler until the scenario ends.
type Runner struct {
	sc    *Scenario
	sched *Scheduler
	bus   *eb.Bus
	coll  *metrics.Collector

	net   *network.Network
	rng   *rand.Rand
	nodes []*node.Node
}

func NewRunner(sc *Scenario, sched *Scheduler, bus *eb.Bus, coll *metrics.Collector) *Runner {
	return &Runner{sc: sc, sched: sched, bus: bus, coll: coll}
}

// Nodes lists the nodes built by Run.
func (r *Runner) Nodes() []*node.Node {
	return r.nodes
}

// InjectData asks the node owning from to send payload to dst. Used by the
// command surfaces (websocket, MQTT). Safe no-op for unknown senders.
func (r *Runner) InjectData(from, dst mesh.Addr, payload string) {
	r.sched.Schedule(0, func() {
		for _, n := range r.nodes {
			if n.PrimaryAddr() == from {
				if err := n.SendData(dst, []byte(payload)); err != nil {
					log.Printf("[sim] inject %s -> %s: %v", from, dst, err)
				}
				return
			}
		}
		log.Printf("[sim] inject: unknown sender %s", from)
	})
}

// Run executes the scenario to completion (or interrupt).
func (r *Runner) Run() error {
	r.rng = rand.New(rand.NewSource(r.sc.Seed))
	if r.coll != nil {
		r.coll.Attach(r.bus)
	}
	r.net = network.New(r.sched, r.sched, r.bus,
		network.WithRange(r.sc.Radio.RangeM),
		network.WithAirTime(r.sc.Radio.AirTime.Std()),
	)

	r.buildGrid()

	duration := r.sc.Duration.Std()
	interval := r.trafficInterval()
	r.sched.Schedule(interval, func() { r.emitTraffic(interval, duration) })

	r.sched.RunUntil(duration + r.sc.Drain.Std())

	for _, n := range r.nodes {
		n.Stop()
	}
	log.Printf("[sim] run complete at t=%s, %d events still queued",
		r.sched.Now(), r.sched.Pending())
	return nil
}

// buildGrid places Count nodes on a square grid with the configured
// spacing, addressing them 10.1.x.y, and staggers their joins.
func (r *Runner) buildGrid() {
	count := r.sc.Nodes.Count
	cols := int(math.Ceil(math.Sqrt(float64(count))))

	for i := 0; i < count; i++ {
		row, col := i/cols, i%cols
		pos := mesh.CreateCoordinates(
			float64(col)*r.sc.Nodes.SpacingM,
			float64(row)*r.sc.Nodes.SpacingM,
		)
		addr := mesh.AddrFrom(10, 1, byte(i/254+1), byte(i%254+1))
		n := node.New(addr, pos, r.sched, r.sched, r.rng, r.bus, r.sc.Protocol.UpdateInterval.Std())
		r.nodes = append(r.nodes, n)

		delay := time.Duration(i) * r.sc.Nodes.JoinDelay.Std()
		r.sched.Schedule(delay, func() {
			n.Attach(r.net)
			if err := n.Start(); err != nil {
				log.Printf("[sim] node %s failed to start: %v", n.PrimaryAddr(), err)
			}
		})
	}
}

func (r *Runner) trafficInterval() time.Duration {
	perSec := r.sc.Traffic.MsgPerNodePerMin / 60.0 * float64(r.sc.Nodes.Count)
	if perSec <= 0 {
		perSec = 0.1
	}
	return time.Duration(float64(time.Second) / perSec)
}

// emitTraffic sends one random datagram and rearms until the scenario
// duration runs out.
func (r *Runner) emitTraffic(interval, duration time.Duration) {
	if r.sched.Now() >= duration {
		return
	}
	if len(r.nodes) >= 2 {
		from := r.nodes[r.rng.Intn(len(r.nodes))]
		to := r.nodes[r.rng.Intn(len(r.nodes))]
		if from != to {
			// No-route errors just mean discovery is underway; the next
			// tick retries some pair.
			_ = from.SendData(to.PrimaryAddr(), []byte(r.sc.Traffic.Payload))
		}
	}
	r.sched.Schedule(interval, func() { r.emitTraffic(interval, duration) })
}
