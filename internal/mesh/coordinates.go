package mesh

import "math"

// Coordinates is a node position on the simulation plane, in metres.
type Coordinates struct {
	X float64
	Y float64
}

func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

func (c Coordinates) Equals(other Coordinates) bool {
	return c.X == other.X && c.Y == other.Y
}

func CreateCoordinates(x, y float64) Coordinates {
	return Coordinates{X: x, Y: y}
}
