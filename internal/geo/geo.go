// Package geo holds the distance math shared by the server query and the
// client's offline nearby search.
package geo

import "math"

const (
	EarthRadiusM = 6371000.0

	// MetersPerDegree is a flat meters-to-degrees factor applied to both axes.
	// Longitude boxes are too narrow away from the equator; callers rely on that.
	MetersPerDegree = 111320.0

	MaxNearbyResults = 50
)

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLng := deg2rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Asin(math.Min(1, math.Sqrt(a)))
	return EarthRadiusM * c
}

// RadiusDegrees converts a radius in meters into the bounding box half-size.
func RadiusDegrees(radiusM float64) float64 {
	return radiusM / MetersPerDegree
}

// Box is an inclusive lat/lng bounding box.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

func BoundingBox(lat, lng, radiusM float64) Box {
	d := RadiusDegrees(radiusM)
	return Box{
		MinLat: lat - d,
		MaxLat: lat + d,
		MinLng: lng - d,
		MaxLng: lng + d,
	}
}

func (b Box) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
