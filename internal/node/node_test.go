package node_test

import (
	"io"
	"log"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/frta"
	"frta-simulation/internal/mesh"
	"frta-simulation/internal/metrics"
	"frta-simulation/internal/network"
	"frta-simulation/internal/node"
	"frta-simulation/internal/sim"
	"frta-simulation/internal/state"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type harness struct {
	sched *sim.Scheduler
	bus   *eb.Bus
	coll  *metrics.Collector
	net   *network.Network
	rng   *rand.Rand
}

func newHarness(rangeM float64) *harness {
	h := &harness{
		sched: sim.NewScheduler(),
		bus:   eb.NewBus(),
		coll:  metrics.NewCollector(),
		rng:   rand.New(rand.NewSource(7)),
	}
	h.coll.Attach(h.bus)
	h.net = network.New(h.sched, h.sched, h.bus, network.WithRange(rangeM))
	return h
}

// addNode builds a node and staggers its join so startup broadcasts do not
// collide on the shared channel.
func (h *harness) addNode(t *testing.T, addr mesh.Addr, x float64, joinAt time.Duration) *node.Node {
	t.Helper()
	n := node.New(addr, mesh.CreateCoordinates(x, 0), h.sched, h.sched, h.rng, h.bus, 3*time.Second)
	h.sched.Schedule(joinAt, func() {
		n.Attach(h.net)
		require.NoError(t, n.Start())
	})
	return n
}

// Two neighbours: the first datagram misses and floods a request, the
// destination installs the reverse route and answers, the advertisements
// then hand the sender a usable route and the retry is delivered.
func TestTwoNodeDiscoveryAndDelivery(t *testing.T) {
	h := newHarness(1000)
	addrA := mesh.AddrFrom(10, 1, 1, 1)
	addrB := mesh.AddrFrom(10, 1, 1, 2)
	nodeA := h.addNode(t, addrA, 0, 0)
	nodeB := h.addNode(t, addrB, 600, 400*time.Millisecond)

	var received []mesh.Datagram
	nodeB.Received = func(dg mesh.Datagram) { received = append(received, dg) }

	var firstErr error
	h.sched.Schedule(time.Second, func() {
		firstErr = nodeA.SendData(addrB, []byte("ping"))
	})

	h.sched.RunUntil(1500 * time.Millisecond)

	// The miss kicked off discovery.
	require.ErrorIs(t, firstErr, frta.ErrNoRoute)
	assert.True(t, nodeA.Protocol().PendingRequest(addrB))

	// B installed the reverse route from the flooded request.
	e, ok := nodeB.Protocol().Store().GetRoute(addrA)
	require.True(t, ok)
	assert.Equal(t, addrA, e.NextHop)
	assert.Equal(t, 0.7, e.Trust)
	assert.Equal(t, uint32(1), e.HopCount)

	// Nobody answered with the destination field A was waiting for, so
	// the pending entry drains through the timeout.
	h.sched.RunUntil(3500 * time.Millisecond)
	assert.False(t, nodeA.Protocol().PendingRequest(addrB))

	// B's advertisement round hands A the route.
	h.sched.RunUntil(5 * time.Second)
	route, err := nodeA.Protocol().RouteOutput(addrB)
	require.NoError(t, err)
	assert.Equal(t, addrB, route.Gateway)

	// The retry lands.
	h.sched.Schedule(0, func() {
		require.NoError(t, nodeA.SendData(addrB, []byte("ping-2")))
	})
	h.sched.RunUntil(6 * time.Second)

	require.Len(t, received, 1)
	assert.Equal(t, []byte("ping-2"), received[0].Payload)
	assert.Equal(t, addrA, received[0].Src)

	snap := h.coll.Snapshot()
	assert.NotZero(t, snap.RequestsSent)
	assert.NotZero(t, snap.AdvertisementsAccepted)
	assert.EqualValues(t, 1, snap.DataDelivered)
}

// A line topology: the flood crosses the middle node, the middle and far
// nodes learn reverse routes toward the requester, and the hop limit stops
// the flood.
func TestLineTopologyFloodInstallsReverseRoutes(t *testing.T) {
	h := newHarness(1000)
	addrA := mesh.AddrFrom(10, 1, 1, 1)
	addrB := mesh.AddrFrom(10, 1, 1, 2)
	addrC := mesh.AddrFrom(10, 1, 1, 3)
	nodeA := h.addNode(t, addrA, 0, 0)
	nodeB := h.addNode(t, addrB, 800, 400*time.Millisecond)
	nodeC := h.addNode(t, addrC, 1600, 800*time.Millisecond)

	// A floods for an address nobody owns.
	ghost := mesh.AddrFrom(10, 9, 9, 9)
	h.sched.Schedule(time.Second, func() {
		nodeA.Protocol().SendRouteRequest(ghost)
	})

	h.sched.RunUntil(10 * time.Second)

	// The middle node heard A directly; the far node heard the forward.
	eB, ok := nodeB.Protocol().Store().GetRoute(addrA)
	require.True(t, ok)
	assert.GreaterOrEqual(t, eB.HopCount, uint32(1))

	eC, ok := nodeC.Protocol().Store().GetRoute(addrA)
	require.True(t, ok)
	assert.Equal(t, addrB, eC.NextHop)
	assert.GreaterOrEqual(t, eC.HopCount, uint32(2))

	// Nobody owns the ghost address and the flood terminated.
	assert.False(t, nodeA.Protocol().PendingRequest(ghost))
	_, ok = nodeA.Protocol().Store().GetRoute(ghost)
	assert.False(t, ok)
	for _, n := range []*node.Node{nodeA, nodeB, nodeC} {
		_, ok := n.Protocol().Store().GetRoute(ghost)
		assert.False(t, ok)
	}
}

func TestSendDataWithoutAttachFails(t *testing.T) {
	h := newHarness(1000)
	n := node.New(mesh.AddrFrom(10, 1, 1, 1), mesh.CreateCoordinates(0, 0),
		h.sched, h.sched, h.rng, h.bus, 3*time.Second)
	assert.Error(t, n.Start())
}

func TestOutOfRangeUnicastPenalisesPath(t *testing.T) {
	h := newHarness(500)
	addrA := mesh.AddrFrom(10, 1, 1, 1)
	addrB := mesh.AddrFrom(10, 1, 1, 2)
	nodeA := h.addNode(t, addrA, 0, 0)
	h.addNode(t, addrB, 5000, 400*time.Millisecond) // far out of range

	h.sched.RunUntil(time.Second)

	// Hand A a (bogus) direct route so the send goes out and fails.
	nodeA.Protocol().Store().AddRoute(addrB, state.RouteEntry{
		NextHop: addrB, Trust: 0.9, LastUpdate: h.sched.Now(), HopCount: 1,
	})
	trustBefore := nodeA.Protocol().Trust().Get(addrB)

	h.sched.Schedule(0, func() {
		require.NoError(t, nodeA.SendData(addrB, []byte("void")))
	})
	h.sched.RunUntil(2 * time.Second)

	// The failed transmission dents the path members' trust.
	assert.Less(t, nodeA.Protocol().Trust().Get(addrB), trustBefore)
	assert.NotZero(t, h.coll.Snapshot().DataLost)
}
