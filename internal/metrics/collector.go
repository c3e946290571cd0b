// Package metrics accumulates simulation counters and flushes them as JSON.
package metrics

import (
	"encoding/json"
	"os"
	"sync"

	eb "frta-simulation/internal/eventBus"
)

type Counters struct {
	RequestsSent      uint64 `json:"requests_sent"`
	RequestsForwarded uint64 `json:"requests_forwarded"`
	RequestTimeouts   uint64 `json:"request_timeouts"`
	RepliesSent       uint64 `json:"replies_sent"`
	RepliesReceived   uint64 `json:"replies_received"`

	AdvertisementsSent     uint64 `json:"advertisements_sent"`
	AdvertisementsAccepted uint64 `json:"advertisements_accepted"`
	TrustUpdates           uint64 `json:"trust_updates"`

	RoutesAdded   uint64 `json:"routes_added"`
	RoutesExpired uint64 `json:"routes_expired"`

	Malformed  uint64 `json:"malformed"`
	NoRoute    uint64 `json:"no_route"`
	Collisions uint64 `json:"collisions"`

	DataSent      uint64 `json:"data_sent"`
	DataDelivered uint64 `json:"data_delivered"`
	DataLost      uint64 `json:"data_lost"`
}

// Collector tallies bus events. Attach it with Attach so counting happens
// synchronously with publishing.
type Collector struct {
	mu sync.Mutex
	Counters
}

func NewCollector() *Collector {
	return &Collector{}
}

// Attach registers the collector on the bus.
func (c *Collector) Attach(bus *eb.Bus) {
	bus.SubscribeFunc(c.Observe)
}

// Observe counts one event.
func (c *Collector) Observe(ev eb.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case eb.EventRequestSent:
		c.RequestsSent++
	case eb.EventRequestForwarded:
		c.RequestsForwarded++
	case eb.EventRequestTimeout:
		c.RequestTimeouts++
	case eb.EventReplySent:
		c.RepliesSent++
	case eb.EventReplyReceived:
		c.RepliesReceived++
	case eb.EventAdvertisementSent:
		c.AdvertisementsSent++
	case eb.EventAdvertisementAccepted:
		c.AdvertisementsAccepted++
	case eb.EventTrustUpdated, eb.EventTrustUpdateSent:
		c.TrustUpdates++
	case eb.EventRouteAdded:
		c.RoutesAdded++
	case eb.EventRouteExpired:
		c.RoutesExpired++
	case eb.EventMalformedMessage:
		c.Malformed++
	case eb.EventNoRoute:
		c.NoRoute++
	case eb.EventCollision:
		c.Collisions++
	case eb.EventMessageSent:
		c.DataSent++
	case eb.EventMessageDelivered:
		c.DataDelivered++
	case eb.EventMessageLost:
		c.DataLost++
	}
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Counters
}

// Flush writes the counters to file as indented JSON.
func (c *Collector) Flush(file string) error {
	snap := c.Snapshot()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
