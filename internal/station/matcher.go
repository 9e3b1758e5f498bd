package station

import (
	"math"

	"github.com/bbernstein/velobot/internal/models"
)

// Mean earth radius in meters
const earthRadiusMeters = 6371008.8

// Match is the result of a nearest-station lookup
type Match struct {
	Station  models.Station `json:"station"`
	Distance float64        `json:"distance"` // meters
}

// FindNearest scans every station in the snapshot and returns the one with the
// smallest great-circle distance to the query point. Equal distances resolve
// to the lowest station id so results do not depend on map iteration order.
// ok is false only when the snapshot is empty.
func FindNearest(stations models.StationCache, at models.Location) (match Match, ok bool) {
	for id, s := range stations {
		d := Distance(at, s.Location)
		if !ok || d < match.Distance || (d == match.Distance && id < match.Station.ID) {
			match = Match{Station: s, Distance: d}
			ok = true
		}
	}
	return match, ok
}

// Distance returns the haversine distance between two points in meters
func Distance(from, to models.Location) float64 {
	dLat := toRadians(to.Latitude - from.Latitude)
	dLon := toRadians(to.Longitude - from.Longitude)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(from.Latitude))*math.Cos(toRadians(to.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
