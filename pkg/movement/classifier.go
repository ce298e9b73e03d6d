// Package movement classifies consecutive fixes as moving or idle to
// drive the sampling cadence.
package movement

import (
	"math"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/gps"
)

const earthRadiusM = 6371000.0

// State is the movement classification of the latest fix pair.
type State int

const (
	Idle State = iota
	Moving
)

func (s State) String() string {
	if s == Moving {
		return "moving"
	}
	return "idle"
}

// Classifier compares consecutive fixes against the distance threshold.
// No hysteresis: every classification immediately selects the interval.
type Classifier struct {
	thresholdM     float64
	movingInterval time.Duration
	idleInterval   time.Duration
}

func NewClassifier(thresholdM float64, movingInterval, idleInterval time.Duration) *Classifier {
	return &Classifier{
		thresholdM:     thresholdM,
		movingInterval: movingInterval,
		idleInterval:   idleInterval,
	}
}

// Classify returns Moving when the great-circle distance between the two
// fixes reaches the threshold. A nil previous fix classifies as Idle.
func (c *Classifier) Classify(prev, cur *gps.Fix) State {
	if prev == nil || cur == nil {
		return Idle
	}
	if DistanceM(prev, cur) >= c.thresholdM {
		return Moving
	}
	return Idle
}

// Interval maps a movement state to the configured sampling interval.
func (c *Classifier) Interval(s State) time.Duration {
	if s == Moving {
		return c.movingInterval
	}
	return c.idleInterval
}

// DistanceM computes the haversine great-circle distance in meters.
func DistanceM(a, b *gps.Fix) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
