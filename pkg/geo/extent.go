package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Extent is a geographic rectangle in radians.
type Extent struct {
	West  float64
	South float64
	East  float64
	North float64
}

// MaxExtent covers the whole globe.
var MaxExtent = Extent{West: -math.Pi, South: -math.Pi / 2, East: math.Pi, North: math.Pi / 2}

// Width returns the east-west span in radians.
func (e Extent) Width() float64 {
	return e.East - e.West
}

// Height returns the north-south span in radians.
func (e Extent) Height() float64 {
	return e.North - e.South
}

// Center returns the center of the extent at zero height.
func (e Extent) Center() Cartographic {
	return Cartographic{
		Longitude: (e.West + e.East) / 2,
		Latitude:  (e.South + e.North) / 2,
	}
}

// Contains reports whether the position lies inside the extent, edges included.
func (e Extent) Contains(c Cartographic) bool {
	return c.Longitude >= e.West && c.Longitude <= e.East &&
		c.Latitude >= e.South && c.Latitude <= e.North
}

// Intersects reports whether two extents overlap.
func (e Extent) Intersects(other Extent) bool {
	return e.West < other.East && other.West < e.East &&
		e.South < other.North && other.South < e.North
}

// Lerp returns the position at normalized (u, v) inside the extent,
// where u runs west to east and v runs south to north.
func (e Extent) Lerp(u, v float64) Cartographic {
	return Cartographic{
		Longitude: e.West + u*e.Width(),
		Latitude:  e.South + v*e.Height(),
	}
}

// Bound returns the extent as an orb.Bound in degrees.
func (e Extent) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{RadiansToDegrees(e.West), RadiansToDegrees(e.South)},
		Max: orb.Point{RadiansToDegrees(e.East), RadiansToDegrees(e.North)},
	}
}

// ExtentFromBound converts an orb.Bound in degrees to an Extent.
func ExtentFromBound(b orb.Bound) Extent {
	return Extent{
		West:  DegreesToRadians(b.Min.Lon()),
		South: DegreesToRadians(b.Min.Lat()),
		East:  DegreesToRadians(b.Max.Lon()),
		North: DegreesToRadians(b.Max.Lat()),
	}
}

// String returns the extent in degrees.
func (e Extent) String() string {
	return fmt.Sprintf("[%.6f, %.6f, %.6f, %.6f]",
		RadiansToDegrees(e.West), RadiansToDegrees(e.South),
		RadiansToDegrees(e.East), RadiansToDegrees(e.North))
}
