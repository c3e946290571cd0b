package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frta-simulation/internal/mesh"
	"frta-simulation/internal/wire"
)

func TestRouteRequestRoundTrip(t *testing.T) {
	in := wire.RouteRequest{
		Dest:     mesh.AddrFrom(10, 1, 1, 3),
		Source:   mesh.AddrFrom(10, 1, 1, 1),
		HopCount: 7,
	}
	buf := in.Serialise()
	require.Len(t, buf, wire.RouteRequestSize)
	require.Equal(t, wire.TypeRouteRequest, buf[0])

	var out wire.RouteRequest
	require.NoError(t, out.Deserialise(buf))
	assert.Equal(t, in, out)
}

func TestRouteReplyRoundTrip(t *testing.T) {
	in := wire.RouteReply{
		Dest:    mesh.AddrFrom(10, 1, 1, 3),
		NextHop: mesh.AddrFrom(10, 1, 1, 2),
		Trust:   0.9,
	}
	buf := in.Serialise()
	require.Len(t, buf, wire.RouteReplySize)
	require.Equal(t, wire.TypeRouteReply, buf[0])

	var out wire.RouteReply
	require.NoError(t, out.Deserialise(buf))
	assert.Equal(t, in, out)
}

func TestRouteAdvertisementRoundTrip(t *testing.T) {
	in := wire.RouteAdvertisement{
		Dest:     mesh.AddrFrom(192, 168, 0, 9),
		NextHop:  mesh.AddrFrom(10, 1, 1, 2),
		Trust:    0.123456789,
		HopCount: 3,
	}
	buf := in.Serialise()
	require.Len(t, buf, wire.RouteAdvertisementSize)
	require.Equal(t, wire.TypeRouteAdvertisement, buf[0])

	var out wire.RouteAdvertisement
	require.NoError(t, out.Deserialise(buf))
	assert.Equal(t, in, out)
}

func TestTrustUpdateRoundTrip(t *testing.T) {
	var in wire.TrustUpdate
	buf := in.Serialise()
	require.Len(t, buf, wire.TrustUpdateSize)
	require.Equal(t, wire.TypeTrustUpdate, buf[0])

	var out wire.TrustUpdate
	require.NoError(t, out.Deserialise(buf))
}

func TestDecodeType(t *testing.T) {
	for _, msgType := range []uint8{
		wire.TypeRouteRequest,
		wire.TypeRouteReply,
		wire.TypeRouteAdvertisement,
		wire.TypeTrustUpdate,
	} {
		got, err := wire.DecodeType([]byte{msgType})
		require.NoError(t, err)
		assert.Equal(t, msgType, got)
	}
}

func TestDecodeTypeEmptyBuffer(t *testing.T) {
	_, err := wire.DecodeType(nil)
	require.ErrorIs(t, err, wire.ErrMalformed)
}

func TestDecodeTypeCoercesUnknownTag(t *testing.T) {
	got, err := wire.DecodeType([]byte{0x2A})
	require.NoError(t, err)
	assert.Equal(t, wire.TypeRouteRequest, got)
}

func TestDeserialiseTruncated(t *testing.T) {
	var req wire.RouteRequest
	assert.ErrorIs(t, req.Deserialise([]byte{wire.TypeRouteRequest, 1, 2}), wire.ErrMalformed)

	var rep wire.RouteReply
	assert.ErrorIs(t, rep.Deserialise(make([]byte, wire.RouteReplySize-1)), wire.ErrMalformed)

	var adv wire.RouteAdvertisement
	assert.ErrorIs(t, adv.Deserialise(make([]byte, wire.RouteAdvertisementSize-1)), wire.ErrMalformed)

	var tu wire.TrustUpdate
	assert.ErrorIs(t, tu.Deserialise(nil), wire.ErrMalformed)
}

func TestTrustSerialisedByBitPattern(t *testing.T) {
	// Values that are not exactly representable must survive unchanged.
	for _, trust := range []float64{0.0, 0.1, 0.5, 0.7, 1.0 / 3.0, 1.0} {
		in := wire.RouteReply{Dest: 1, NextHop: 2, Trust: trust}
		var out wire.RouteReply
		require.NoError(t, out.Deserialise(in.Serialise()))
		assert.Equal(t, trust, out.Trust)
	}
}
