package mesh_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frta-simulation/internal/mesh"
)

func TestAddrStringRoundTrip(t *testing.T) {
	for _, s := range []string{"0.0.0.0", "10.1.1.2", "192.168.0.255", "255.255.255.255"} {
		a, err := mesh.ParseAddr(s)
		require.NoError(t, err)
		assert.Equal(t, s, a.String())
	}
}

func TestParseAddrRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "10.1.1", "10.1.1.256", "hello", "-1.0.0.1"} {
		_, err := mesh.ParseAddr(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestBroadcast(t *testing.T) {
	assert.True(t, mesh.Broadcast.IsBroadcast())
	assert.False(t, mesh.AddrFrom(10, 1, 1, 1).IsBroadcast())
	assert.Equal(t, "255.255.255.255", mesh.Broadcast.String())
}

func TestAddrOrdering(t *testing.T) {
	// Ordering is numeric, so the grid addressing sorts naturally.
	assert.Less(t, mesh.AddrFrom(10, 1, 1, 1), mesh.AddrFrom(10, 1, 1, 2))
	assert.Less(t, mesh.AddrFrom(10, 1, 1, 255), mesh.AddrFrom(10, 1, 2, 1))
}

func TestCoordinates(t *testing.T) {
	a := mesh.CreateCoordinates(0, 0)
	b := mesh.CreateCoordinates(3, 4)
	assert.Equal(t, 5.0, a.DistanceTo(b))
	assert.True(t, a.Equals(mesh.CreateCoordinates(0, 0)))
	assert.False(t, a.Equals(b))
}
