package models

import "fmt"

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate is a real point on the globe
func (l Location) Validate() error {
	// Written as negated ranges so NaN is rejected too
	if !(l.Latitude >= -90 && l.Latitude <= 90) {
		return fmt.Errorf("invalid latitude: %f", l.Latitude)
	}
	if !(l.Longitude >= -180 && l.Longitude <= 180) {
		return fmt.Errorf("invalid longitude: %f", l.Longitude)
	}
	return nil
}

// Station is one docking station as reported by a single refresh cycle.
// Records are replaced wholesale on every refresh and never mutated in place.
type Station struct {
	ID                string   `json:"id"`
	Location          Location `json:"location"`
	Address           string   `json:"address"`
	OrdinaryCapacity  int      `json:"ordinaryCapacity"`
	OrdinaryAvailable int      `json:"ordinaryAvailable"`
	ElectricCapacity  int      `json:"electricCapacity"`
	ElectricAvailable int      `json:"electricAvailable"`
}

// StationCache maps station id to its latest record
type StationCache map[string]Station

// Clone returns a shallow copy of the map. Station values are immutable so
// copying the map structure is enough.
func (c StationCache) Clone() StationCache {
	out := make(StationCache, len(c))
	for id, s := range c {
		out[id] = s
	}
	return out
}

// NewStationCache indexes a station list by id. Later duplicates win.
func NewStationCache(stations []Station) StationCache {
	out := make(StationCache, len(stations))
	for _, s := range stations {
		out[s.ID] = s
	}
	return out
}
