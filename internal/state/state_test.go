package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frta-simulation/internal/mesh"
	"frta-simulation/internal/state"
)

func TestAddGetRemoveRoute(t *testing.T) {
	s := state.NewStore()
	dest := mesh.AddrFrom(10, 1, 1, 3)
	entry := state.RouteEntry{
		NextHop:    mesh.AddrFrom(10, 1, 1, 2),
		Trust:      0.8,
		LastUpdate: time.Second,
		HopCount:   2,
	}
	s.AddRoute(dest, entry)

	got, ok := s.GetRoute(dest)
	require.True(t, ok)
	assert.Equal(t, entry, got)

	s.RemoveRoute(dest)
	_, ok = s.GetRoute(dest)
	assert.False(t, ok)
}

func TestAddRouteClampsTrust(t *testing.T) {
	s := state.NewStore()
	dest := mesh.AddrFrom(10, 1, 1, 3)

	s.AddRoute(dest, state.RouteEntry{NextHop: 1, Trust: 1.5})
	got, _ := s.GetRoute(dest)
	assert.Equal(t, 1.0, got.Trust)

	s.AddRoute(dest, state.RouteEntry{NextHop: 1, Trust: -0.5})
	got, _ = s.GetRoute(dest)
	assert.Equal(t, 0.0, got.Trust)
}

func TestTrustDefaultsAndClamping(t *testing.T) {
	s := state.NewStore()
	node := mesh.AddrFrom(10, 1, 1, 2)

	assert.Equal(t, 0.5, s.GetTrust(node))

	s.UpdateTrust(node, 0.9)
	assert.Equal(t, 0.9, s.GetTrust(node))

	s.UpdateTrust(node, 1.7)
	assert.Equal(t, 1.0, s.GetTrust(node))

	s.UpdateTrust(node, -0.2)
	assert.Equal(t, 0.0, s.GetTrust(node))
}

func TestActiveNodes(t *testing.T) {
	s := state.NewStore()
	a := mesh.AddrFrom(10, 1, 1, 1)
	b := mesh.AddrFrom(10, 1, 1, 2)
	c := mesh.AddrFrom(10, 1, 1, 3)

	s.SetNodeActive(c, true, time.Second)
	s.SetNodeActive(a, true, 2*time.Second)
	s.SetNodeActive(b, false, 3*time.Second)

	assert.True(t, s.IsNodeActive(a))
	assert.False(t, s.IsNodeActive(b))
	assert.Equal(t, []mesh.Addr{a, c}, s.GetActiveNodes())
	assert.Equal(t, 3*time.Second, s.LastUpdate())
}

func TestDestinationsSorted(t *testing.T) {
	s := state.NewStore()
	for _, d := range []mesh.Addr{30, 10, 20} {
		s.AddRoute(d, state.RouteEntry{NextHop: 1, HopCount: 1})
	}
	assert.Equal(t, []mesh.Addr{10, 20, 30}, s.Destinations())
	assert.Equal(t, 3, s.RouteCount())
}

func TestClear(t *testing.T) {
	s := state.NewStore()
	s.AddRoute(1, state.RouteEntry{NextHop: 2, HopCount: 1})
	s.UpdateTrust(2, 0.9)
	s.SetNodeActive(2, true, time.Second)

	s.Clear()

	assert.Equal(t, 0, s.RouteCount())
	assert.Equal(t, 0.5, s.GetTrust(2))
	assert.Empty(t, s.GetActiveNodes())
}

func TestFreshness(t *testing.T) {
	e := state.RouteEntry{LastUpdate: 10 * time.Second}
	timeout := 30 * time.Second

	assert.True(t, e.Fresh(10*time.Second, timeout))
	assert.True(t, e.Fresh(39*time.Second, timeout))
	assert.False(t, e.Fresh(40*time.Second, timeout))
	assert.False(t, e.Fresh(41*time.Second, timeout))
}
