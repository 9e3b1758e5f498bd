package station

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/bbernstein/velobot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStation(id string, lat, lon float64) models.Station {
	return models.Station{
		ID:                id,
		Location:          models.Location{Latitude: lat, Longitude: lon},
		Address:           "Test address " + id,
		OrdinaryCapacity:  10,
		OrdinaryAvailable: 5,
		ElectricCapacity:  2,
		ElectricAvailable: 1,
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		from     models.Location
		to       models.Location
		expected float64
		delta    float64
	}{
		{
			name:     "same point",
			from:     models.Location{Latitude: 55.70, Longitude: 37.60},
			to:       models.Location{Latitude: 55.70, Longitude: 37.60},
			expected: 0,
			delta:    0.0001,
		},
		{
			name:     "short hop inside Moscow",
			from:     models.Location{Latitude: 55.70, Longitude: 37.60},
			to:       models.Location{Latitude: 55.701, Longitude: 37.601},
			expected: 127.6, // ~128 m
			delta:    1.0,
		},
		{
			name:     "known distance - Seattle to Portland",
			from:     models.Location{Latitude: 47.6062, Longitude: -122.3321},
			to:       models.Location{Latitude: 45.5155, Longitude: -122.6789},
			expected: 234000,
			delta:    1000,
		},
		{
			name:     "antipodal points",
			from:     models.Location{Latitude: 90, Longitude: 0},
			to:       models.Location{Latitude: -90, Longitude: 0},
			expected: 20015114,
			delta:    100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Distance(tt.from, tt.to), tt.delta)
			assert.InDelta(t, Distance(tt.from, tt.to), Distance(tt.to, tt.from), 1e-6)
		})
	}
}

func TestFindNearest(t *testing.T) {
	tests := []struct {
		name     string
		stations []models.Station
		at       models.Location
		wantID   string
		wantOK   bool
	}{
		{
			name:   "empty snapshot",
			at:     models.Location{Latitude: 55.7, Longitude: 37.6},
			wantOK: false,
		},
		{
			name:     "single station",
			stations: []models.Station{createTestStation("S1", 55.70, 37.60)},
			at:       models.Location{Latitude: 55.701, Longitude: 37.601},
			wantID:   "S1",
			wantOK:   true,
		},
		{
			name: "closest of several",
			stations: []models.Station{
				createTestStation("far", 55.80, 37.70),
				createTestStation("near", 55.7011, 37.6012),
				createTestStation("middle", 55.71, 37.61),
			},
			at:     models.Location{Latitude: 55.701, Longitude: 37.601},
			wantID: "near",
			wantOK: true,
		},
		{
			name: "tie resolves to lowest id",
			stations: []models.Station{
				createTestStation("0300", 55.70, 37.60),
				createTestStation("0100", 55.70, 37.60),
				createTestStation("0200", 55.70, 37.60),
			},
			at:     models.Location{Latitude: 55.71, Longitude: 37.61},
			wantID: "0100",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, ok := FindNearest(models.NewStationCache(tt.stations), tt.at)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantID, match.Station.ID)
			assert.InDelta(t, Distance(tt.at, match.Station.Location), match.Distance, 1e-9)
		})
	}
}

func TestFindNearestIsMinimal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		stations := make([]models.Station, 0, 40)
		for i := 0; i < 40; i++ {
			stations = append(stations, createTestStation(
				fmt.Sprintf("%04d", i),
				55.5+rng.Float64()*0.5,
				37.3+rng.Float64()*0.6,
			))
		}
		at := models.Location{Latitude: 55.5 + rng.Float64()*0.5, Longitude: 37.3 + rng.Float64()*0.6}

		match, ok := FindNearest(models.NewStationCache(stations), at)
		require.True(t, ok)
		for _, s := range stations {
			assert.LessOrEqual(t, match.Distance, Distance(at, s.Location))
		}
	}
}
