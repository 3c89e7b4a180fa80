package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateHaversineDistance(t *testing.T) {
	t.Run("same point", func(t *testing.T) {
		assert.Zero(t, CalculateHaversineDistance(-6.2, 106.8, -6.2, 106.8))
	})

	t.Run("jakarta to bandung", func(t *testing.T) {
		d := CalculateHaversineDistance(-6.2088, 106.8456, -6.9175, 107.6191)
		assert.InDelta(t, 116000, d, 2000)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := CalculateHaversineDistance(51.5074, -0.1278, 40.7128, -74.0060)
		b := CalculateHaversineDistance(40.7128, -74.0060, 51.5074, -0.1278)
		assert.InDelta(t, a, b, 1e-6)
	})

	t.Run("antipodal", func(t *testing.T) {
		d := CalculateHaversineDistance(0, 0, 0, 180)
		assert.InDelta(t, 3.14159265*EarthRadiusMeters, d, 1)
	})
}

func TestOffsetNorth(t *testing.T) {
	lat := OffsetNorth(-6.2, 2000)
	assert.InDelta(t, 2000, CalculateHaversineDistance(-6.2, 106.8, lat, 106.8), 0.01)
}
