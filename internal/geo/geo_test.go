package geo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ljubljana = Point{Lat: 46.0569, Lon: 14.5058}
	maribor   = Point{Lat: 46.5547, Lon: 15.6459}
)

func TestDistance(t *testing.T) {
	assert.InDelta(t, 0, Distance(ljubljana, ljubljana), 1e-6)

	d := Distance(ljubljana, maribor)
	assert.InDelta(t, 103_600, d, 1_000)
	assert.InDelta(t, d, Distance(maribor, ljubljana), 1e-6)

	// One degree of latitude is about 111.2 km everywhere.
	assert.InDelta(t, 111_195, Distance(Point{0, 0}, Point{1, 0}), 10)
}

func TestWithin(t *testing.T) {
	near := Point{Lat: ljubljana.Lat + 0.0009, Lon: ljubljana.Lon} // ~100 m north
	assert.True(t, Within(near, ljubljana, 150))
	assert.False(t, Within(near, ljubljana, 50))
	assert.False(t, Within(maribor, ljubljana, DefaultRadius))
}

func TestWatchFiresOnceOnArrival(t *testing.T) {
	var calls atomic.Int32
	positions := []Point{maribor, {}, ljubljana, ljubljana}
	src := PositionFunc(func(context.Context) (Point, error) {
		i := int(calls.Add(1)) - 1
		if i == 1 {
			return Point{}, errors.New("no fix")
		}
		if i >= len(positions) {
			i = len(positions) - 1
		}
		return positions[i], nil
	})

	var arrivals int
	err := Watch(context.Background(), src, ljubljana, 100, time.Millisecond, func(p Point, d float64) {
		arrivals++
		assert.Equal(t, ljubljana, p)
		assert.InDelta(t, 0, d, 1e-6)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, arrivals)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	src := PositionFunc(func(context.Context) (Point, error) { return maribor, nil })
	err := Watch(ctx, src, ljubljana, 100, time.Millisecond, func(Point, float64) {
		t.Fatal("should never arrive")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
