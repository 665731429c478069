package geo

import "math"

// Mean earth radius in meters.
const earthRadiusMeters = 6371000.0

// HaversineDistance returns the great-circle distance in meters between
// two coordinates using a spherical-earth approximation.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusMeters * c
}

// WithinRadius reports whether two coordinates lie within radiusMeters
// of each other. The boundary is inclusive.
func WithinRadius(lat1, lon1, lat2, lon2, radiusMeters float64) bool {
	return HaversineDistance(lat1, lon1, lat2, lon2) <= radiusMeters
}

// BoundingBox is a latitude/longitude rectangle used as a cheap index
// prefilter before exact distance refinement.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoundingBoxAround computes the box enclosing the circle of
// radiusMeters around the coordinate.
func BoundingBoxAround(lat, lon, radiusMeters float64) BoundingBox {
	latDelta := (radiusMeters / earthRadiusMeters) * (180 / math.Pi)
	lonDelta := latDelta / math.Cos(lat*math.Pi/180)

	return BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: lon - lonDelta,
		MaxLon: lon + lonDelta,
	}
}

// ValidCoordinate reports whether lat/lon form a usable coordinate.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
