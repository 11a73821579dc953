package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCartographicToCartesian(t *testing.T) {
	tests := []struct {
		name string
		in   Cartographic
		want Cartesian3
	}{
		{"equator prime meridian", Cartographic{0, 0, 0}, Cartesian3{6378137.0, 0, 0}},
		{"equator 90E", Cartographic{math.Pi / 2, 0, 0}, Cartesian3{0, 6378137.0, 0}},
		{"north pole", Cartographic{0, math.Pi / 2, 0}, Cartesian3{0, 0, 6356752.3142451793}},
		{"height above equator", Cartographic{0, 0, 1000}, Cartesian3{6379137.0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WGS84.CartographicToCartesian(tt.in)
			assert.InDelta(t, tt.want.X, got.X, 1e-6)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-6)
			assert.InDelta(t, tt.want.Z, got.Z, 1e-6)
		})
	}
}

func TestUnitSphereSurfaceIsUnitLength(t *testing.T) {
	for lon := -math.Pi; lon <= math.Pi; lon += 0.5 {
		for lat := -math.Pi / 2; lat <= math.Pi/2; lat += 0.25 {
			p := UnitSphere.CartographicToCartesian(Cartographic{Longitude: lon, Latitude: lat})
			assert.InDelta(t, 1.0, p.Length(), 1e-12)
		}
	}
}

func TestExtentBoundRoundTrip(t *testing.T) {
	e := Extent{West: -0.5, South: -0.25, East: 0.5, North: 0.25}
	got := ExtentFromBound(e.Bound())
	assert.InDelta(t, e.West, got.West, 1e-12)
	assert.InDelta(t, e.South, got.South, 1e-12)
	assert.InDelta(t, e.East, got.East, 1e-12)
	assert.InDelta(t, e.North, got.North, 1e-12)
}

func TestExtentLerpAndContains(t *testing.T) {
	e := Extent{West: 0, South: 0, East: 1, North: 2}

	c := e.Lerp(0.5, 0.5)
	assert.Equal(t, e.Center(), c)
	assert.True(t, e.Contains(c))
	assert.True(t, e.Contains(e.Lerp(1, 1)))
	assert.False(t, e.Contains(Cartographic{Longitude: 1.5, Latitude: 1}))

	assert.True(t, e.Intersects(Extent{West: 0.5, South: 1, East: 3, North: 3}))
	assert.False(t, e.Intersects(Extent{West: 1, South: 0, East: 2, North: 2}))
}
