package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for every distance in this module.
const EarthRadiusMeters = 6371000.0

// UnknownDistance is displayed when either end of a distance is unknown.
const UnknownDistance = "位置未知"

// Point is a WGS84/GCJ-02 coordinate pair in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HaversineMeters returns the great-circle distance between two points in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// DistanceTo returns the distance from p to q in meters.
func (p Point) DistanceTo(q Point) float64 {
	return HaversineMeters(p.Latitude, p.Longitude, q.Latitude, q.Longitude)
}

// FormatDistance renders meters below 1000 as "450m" and longer distances as "1.5km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}
