// Package geo has the distance math behind site arrival detection.
package geo

import (
	"context"
	"math"
	"time"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000.0

// DefaultRadius is the arrival radius used when none is configured.
const DefaultRadius = 150.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Within reports whether p is at most radius meters from center.
func Within(p, center Point, radius float64) bool {
	return Distance(p, center) <= radius
}

// PositionSource returns the current device position.
type PositionSource interface {
	Position(ctx context.Context) (Point, error)
}

// PositionFunc adapts a function to PositionSource.
type PositionFunc func(ctx context.Context) (Point, error)

func (f PositionFunc) Position(ctx context.Context) (Point, error) { return f(ctx) }

// Watch polls src every interval and calls onArrive once, the first time
// the position is within radius of site. Position errors are skipped. Watch
// returns nil after arrival, or ctx.Err() when cancelled first.
func Watch(ctx context.Context, src PositionSource, site Point, radius float64, interval time.Duration, onArrive func(Point, float64)) error {
	check := func() bool {
		p, err := src.Position(ctx)
		if err != nil {
			return false
		}
		d := Distance(p, site)
		if d > radius {
			return false
		}
		onArrive(p, d)
		return true
	}

	if check() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if check() {
				return nil
			}
		}
	}
}
