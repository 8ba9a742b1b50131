// Package geofence checks whether a reported position lies within a facility's radius.
package geofence

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0
	// DefaultRadiusMeters is the accepted distance from the facility reference.
	DefaultRadiusMeters = 300.0
)

// Verdict is the outcome of a geofence check. Valid=false means the check could not be
// asserted because a coordinate was missing; it is not a violation.
type Verdict struct {
	Valid    bool `json:"valid"`
	Distance *int `json:"distance"`
	Outside  bool `json:"outside"`
}

// HaversineDistance returns the great-circle distance in meters between two points.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push a past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Validate compares an event position with the reference. A non-positive radius falls back
// to DefaultRadiusMeters.
func Validate(refLat, refLon, eventLat, eventLon *float64, radius float64) Verdict {
	if refLat == nil || refLon == nil || eventLat == nil || eventLon == nil {
		return Verdict{}
	}
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}

	distance := int(math.Round(HaversineDistance(*refLat, *refLon, *eventLat, *eventLon)))
	return Verdict{
		Valid:    true,
		Distance: &distance,
		Outside:  float64(distance) > radius,
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
