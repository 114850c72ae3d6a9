package catalog

import (
	"math"

	"github.com/BTreeMap/FastCab/internal/models"
)

const earthRadiusKm = 6371.0

// DefaultDistanceKm is the distance assumed when either end has no coordinates.
const DefaultDistanceKm = 8.0

// Distance returns the great-circle distance between two locations in
// kilometres, rounded to 0.1 km.
func Distance(from, to models.Location) float64 {
	if !from.HasCoordinates || !to.HasCoordinates {
		return DefaultDistanceKm
	}
	return math.Round(haversineKm(from.Lat, from.Lng, to.Lat, to.Lng)*10) / 10
}

// Fare returns base + per-km rate × distance for the ride class.
func Fare(rc models.RideClass, distanceKm float64) float64 {
	return rc.BaseFare + rc.PerKmRate*distanceKm
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(lat1))*math.Cos(degreesToRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
