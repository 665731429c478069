package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistanceZero(t *testing.T) {
	assert.Zero(t, HaversineDistance(12.9716, 77.5946, 12.9716, 77.5946))
}

func TestHaversineDistanceKnownPair(t *testing.T) {
	// Roughly 40m apart in Bengaluru.
	d := HaversineDistance(12.9000, 77.5800, 12.9003, 77.5802)
	assert.InDelta(t, 40, d, 5)
}

func TestHaversineDistanceSymmetry(t *testing.T) {
	a := HaversineDistance(12.90, 77.58, 13.00, 77.60)
	b := HaversineDistance(13.00, 77.60, 12.90, 77.58)
	assert.InDelta(t, a, b, 1e-9)
}

func TestWithinRadiusInclusiveBoundary(t *testing.T) {
	d := HaversineDistance(12.90, 77.58, 12.9003, 77.5802)
	assert.True(t, WithinRadius(12.90, 77.58, 12.9003, 77.5802, d))
	assert.False(t, WithinRadius(12.90, 77.58, 12.9003, 77.5802, d-0.5))
}

func TestBoundingBoxAroundContainsCircle(t *testing.T) {
	lat, lon := 12.9716, 77.5946
	box := BoundingBoxAround(lat, lon, 100)

	assert.Less(t, box.MinLat, lat)
	assert.Greater(t, box.MaxLat, lat)
	assert.Less(t, box.MinLon, lon)
	assert.Greater(t, box.MaxLon, lon)

	// The box edge sits at the radius along the meridian.
	north := HaversineDistance(lat, lon, box.MaxLat, lon)
	assert.InDelta(t, 100, north, 1)
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(0, 0))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.1, 0))
	assert.False(t, ValidCoordinate(0, -180.1))
}
