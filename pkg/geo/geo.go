package geo

import "math"

// EarthRadiusKM is Earth's mean radius in kilometers for the Haversine
// formula.
const EarthRadiusKM = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// HaversineKM calculates the great-circle distance between two points on
// Earth in kilometers.
func HaversineKM(a, b Point) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKM * c
}
