// Package collision tracks transmission outcomes per sender, per link and
// globally, and ranks candidate paths by estimated collision probability.
package collision

import (
	"math"
	"time"

	"frta-simulation/internal/mesh"
)

const (
	// alpha smooths the per-sender collision probability.
	alpha = 0.1
	// minTransmissionGap under which back-to-back sends from the same
	// sender are treated as collision-prone.
	minTransmissionGap = 100 * time.Microsecond
	// linkCollisionLimit beyond which a link counts as risky.
	linkCollisionLimit = 5
	// probabilityLimit beyond which a sender counts as risky.
	probabilityLimit = 0.5
)

// TransmissionStats is what one node has observed about one sender.
type TransmissionStats struct {
	LastTransmission     time.Duration
	PacketCount          uint64
	CollisionProbability float64
}

// Link is a directed sender/receiver pair.
type Link struct {
	Src mesh.Addr
	Dst mesh.Addr
}

// Detector aggregates collision observations for one node.
type Detector struct {
	clock mesh.Clock

	stats          map[mesh.Addr]*TransmissionStats
	linkCollisions map[Link]uint32

	successCount uint64
	totalCount   uint64
	cachedProb   float64
	cacheValid   bool
}

func NewDetector(clock mesh.Clock) *Detector {
	return &Detector{
		clock:          clock,
		stats:          make(map[mesh.Addr]*TransmissionStats),
		linkCollisions: make(map[Link]uint32),
	}
}

// UpdateTransmission folds one observed transmission from sender into its
// stats and the global counters. The per-sender probability is an
// exponential moving average; it stays within [0, 1].
func (d *Detector) UpdateTransmission(sender mesh.Addr, success bool) {
	st := d.stats[sender]
	if st == nil {
		st = &TransmissionStats{}
		d.stats[sender] = st
	}
	st.LastTransmission = d.clock.Now()
	st.PacketCount++
	if success {
		st.CollisionProbability = (1 - alpha) * st.CollisionProbability
	} else {
		st.CollisionProbability = alpha + (1-alpha)*st.CollisionProbability
	}

	d.totalCount++
	if success {
		d.successCount++
	}
	d.cacheValid = false
}

// RecordLinkCollision counts one observed collision on the directed link from src to dst.
func (d *Detector) RecordLinkCollision(src, dst mesh.Addr) {
	d.linkCollisions[Link{Src: src, Dst: dst}]++
}

// LinkCollisions returns the collision count recorded from src to dst.
func (d *Detector) LinkCollisions(src, dst mesh.Addr) uint32 {
	return d.linkCollisions[Link{Src: src, Dst: dst}]
}

// Stats returns a copy of the stats recorded for sender.
func (d *Detector) Stats(sender mesh.Addr) (TransmissionStats, bool) {
	if st, ok := d.stats[sender]; ok {
		return *st, true
	}
	return TransmissionStats{}, false
}

// DetectPotential flags a transmission from sender to receiver as
// collision-prone: the sender transmitted very recently, the link has a
// bad collision history, or the sender's smoothed probability is high.
func (d *Detector) DetectPotential(sender, receiver mesh.Addr) bool {
	var st TransmissionStats
	if s, ok := d.stats[sender]; ok {
		st = *s
	}
	if d.clock.Now()-st.LastTransmission < minTransmissionGap {
		return true
	}
	if d.linkCollisions[Link{Src: sender, Dst: receiver}] > linkCollisionLimit {
		return true
	}
	return st.CollisionProbability > probabilityLimit
}

// GlobalCollisionProbability is the observed failure ratio over all
// transmissions, cached until the next update. Zero when nothing has been
// observed yet.
func (d *Detector) GlobalCollisionProbability() float64 {
	if !d.cacheValid {
		if d.totalCount == 0 {
			d.cachedProb = 0.0
		} else {
			d.cachedProb = 1.0 - float64(d.successCount)/float64(d.totalCount)
		}
		d.cacheValid = true
	}
	return d.cachedProb
}

// PathCollisionProbability grows with path length and is capped at 1.
// An empty path always collides.
func (d *Detector) PathCollisionProbability(path []mesh.Addr) float64 {
	if len(path) == 0 {
		return 1.0
	}
	base := d.GlobalCollisionProbability()
	return math.Min(1.0, base*(1.0+math.Log(float64(len(path)))))
}

// SelectOptimalPath returns the candidate with the lowest collision
// probability, the first one on ties. Empty input yields an empty path.
func (d *Detector) SelectOptimalPath(paths [][]mesh.Addr) []mesh.Addr {
	if len(paths) == 0 {
		return nil
	}
	best := paths[0]
	bestProb := d.PathCollisionProbability(paths[0])
	for _, p := range paths[1:] {
		if prob := d.PathCollisionProbability(p); prob < bestProb {
			best, bestProb = p, prob
		}
	}
	return best
}
