package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine_SamePoint(t *testing.T) {
	assert.Zero(t, Haversine(51.5074, -0.1278, 51.5074, -0.1278))
}

func TestHaversine_KnownDistance(t *testing.T) {
	// London to Paris is roughly 344 km.
	d := Haversine(51.5074, -0.1278, 48.8566, 2.3522)
	assert.InDelta(t, 344_000, d, 2_000)
}

func TestHaversine_ShortDistance(t *testing.T) {
	// Two points ~1.11 km apart along a meridian.
	d := Haversine(51.50, -0.12, 51.51, -0.12)
	assert.InDelta(t, 1_112, d, 10)
}
