// Package wire implements the fixed-width big-endian framing of FRTA
// control messages. Every message starts with a one-byte type tag.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"

	"frta-simulation/internal/mesh"
)

// Message type tags.
const (
	TypeRouteRequest       uint8 = 1
	TypeRouteReply         uint8 = 2
	TypeRouteAdvertisement uint8 = 3
	TypeTrustUpdate        uint8 = 4
)

// Serialised sizes, including the leading type byte.
const (
	RouteRequestSize       = 1 + 12
	RouteReplySize         = 1 + 16
	RouteAdvertisementSize = 1 + 20
	TrustUpdateSize        = 1
)

// ErrMalformed reports a truncated buffer.
var ErrMalformed = errors.New("malformed message")

// DecodeType reads the leading type tag. A tag outside the known range is
// coerced to RouteRequest with a warning, keeping the tolerant behaviour of
// the reference decoder; the subsequent body parse rejects the buffer if it
// does not actually hold a request.
func DecodeType(buf []byte) (uint8, error) {
	if len(buf) < 1 {
		return 0, fmt.Errorf("%w: empty buffer", ErrMalformed)
	}
	t := buf[0]
	if t < TypeRouteRequest || t > TypeTrustUpdate {
		log.Printf("[wire] invalid message type %d, treating as route request", t)
		return TypeRouteRequest, nil
	}
	return t, nil
}

// RouteRequest floods the network looking for a destination.
type RouteRequest struct {
	Dest     mesh.Addr
	Source   mesh.Addr
	HopCount uint32
}

func (m *RouteRequest) Serialise() []byte {
	buf := make([]byte, RouteRequestSize)
	buf[0] = TypeRouteRequest
	binary.BigEndian.PutUint32(buf[1:5], uint32(m.Dest))
	binary.BigEndian.PutUint32(buf[5:9], uint32(m.Source))
	binary.BigEndian.PutUint32(buf[9:13], m.HopCount)
	return buf
}

// Deserialise parses the body after the type tag. The tag itself is not
// re-checked so that coerced buffers still parse.
func (m *RouteRequest) Deserialise(buf []byte) error {
	if len(buf) < RouteRequestSize {
		return fmt.Errorf("%w: buffer too short for route request", ErrMalformed)
	}
	m.Dest = mesh.Addr(binary.BigEndian.Uint32(buf[1:5]))
	m.Source = mesh.Addr(binary.BigEndian.Uint32(buf[5:9]))
	m.HopCount = binary.BigEndian.Uint32(buf[9:13])
	return nil
}

// RouteReply travels back along the reverse path of a request.
type RouteReply struct {
	Dest    mesh.Addr
	NextHop mesh.Addr
	Trust   float64
}

func (m *RouteReply) Serialise() []byte {
	buf := make([]byte, RouteReplySize)
	buf[0] = TypeRouteReply
	binary.BigEndian.PutUint32(buf[1:5], uint32(m.Dest))
	binary.BigEndian.PutUint32(buf[5:9], uint32(m.NextHop))
	binary.BigEndian.PutUint64(buf[9:17], math.Float64bits(m.Trust))
	return buf
}

func (m *RouteReply) Deserialise(buf []byte) error {
	if len(buf) < RouteReplySize {
		return fmt.Errorf("%w: buffer too short for route reply", ErrMalformed)
	}
	m.Dest = mesh.Addr(binary.BigEndian.Uint32(buf[1:5]))
	m.NextHop = mesh.Addr(binary.BigEndian.Uint32(buf[5:9]))
	m.Trust = math.Float64frombits(binary.BigEndian.Uint64(buf[9:17]))
	return nil
}

// RouteAdvertisement carries one route cache entry in a periodic broadcast.
type RouteAdvertisement struct {
	Dest     mesh.Addr
	NextHop  mesh.Addr
	Trust    float64
	HopCount uint32
}

func (m *RouteAdvertisement) Serialise() []byte {
	buf := make([]byte, RouteAdvertisementSize)
	buf[0] = TypeRouteAdvertisement
	binary.BigEndian.PutUint32(buf[1:5], uint32(m.Dest))
	binary.BigEndian.PutUint32(buf[5:9], uint32(m.NextHop))
	binary.BigEndian.PutUint64(buf[9:17], math.Float64bits(m.Trust))
	binary.BigEndian.PutUint32(buf[17:21], m.HopCount)
	return buf
}

func (m *RouteAdvertisement) Deserialise(buf []byte) error {
	if len(buf) < RouteAdvertisementSize {
		return fmt.Errorf("%w: buffer too short for route advertisement", ErrMalformed)
	}
	m.Dest = mesh.Addr(binary.BigEndian.Uint32(buf[1:5]))
	m.NextHop = mesh.Addr(binary.BigEndian.Uint32(buf[5:9]))
	m.Trust = math.Float64frombits(binary.BigEndian.Uint64(buf[9:17]))
	m.HopCount = binary.BigEndian.Uint32(buf[17:21])
	return nil
}

// TrustUpdate has no body; the trust value travels as a per-packet tag
// alongside the datagram.
type TrustUpdate struct{}

func (m *TrustUpdate) Serialise() []byte {
	return []byte{TypeTrustUpdate}
}

func (m *TrustUpdate) Deserialise(buf []byte) error {
	if len(buf) < TrustUpdateSize {
		return fmt.Errorf("%w: buffer too short for trust update", ErrMalformed)
	}
	return nil
}
