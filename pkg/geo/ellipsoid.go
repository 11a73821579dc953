// Package geo provides ellipsoid and geographic extent types for globe geometry.
package geo

import "math"

// Cartesian3 is an Earth-centered, Earth-fixed position in meters.
// X points to 0° longitude at the equator, Z points to the north pole.
type Cartesian3 struct {
	X, Y, Z float64
}

// Add returns c + other.
func (c Cartesian3) Add(other Cartesian3) Cartesian3 {
	return Cartesian3{c.X + other.X, c.Y + other.Y, c.Z + other.Z}
}

// Scale returns c * s.
func (c Cartesian3) Scale(s float64) Cartesian3 {
	return Cartesian3{c.X * s, c.Y * s, c.Z * s}
}

// Length returns the magnitude.
func (c Cartesian3) Length() float64 {
	return math.Sqrt(c.X*c.X + c.Y*c.Y + c.Z*c.Z)
}

// Normalize returns a unit vector, or the zero vector for zero input.
func (c Cartesian3) Normalize() Cartesian3 {
	l := c.Length()
	if l == 0 {
		return Cartesian3{}
	}
	return Cartesian3{c.X / l, c.Y / l, c.Z / l}
}

// Cartographic is a geodetic position.
type Cartographic struct {
	Longitude float64 // radians, positive east
	Latitude  float64 // radians, positive north
	Height    float64 // meters above the ellipsoid surface
}

// Ellipsoid is an axis-aligned ellipsoid centered at the origin.
type Ellipsoid struct {
	Radii Cartesian3
}

// WGS84 is the WGS84 reference ellipsoid.
var WGS84 = NewEllipsoid(6378137.0, 6378137.0, 6356752.3142451793)

// UnitSphere is a sphere of radius 1.
var UnitSphere = NewEllipsoid(1, 1, 1)

// NewEllipsoid creates an ellipsoid with the given radii.
func NewEllipsoid(x, y, z float64) Ellipsoid {
	return Ellipsoid{Radii: Cartesian3{x, y, z}}
}

// MaximumRadius returns the largest of the three radii.
func (e Ellipsoid) MaximumRadius() float64 {
	return math.Max(e.Radii.X, math.Max(e.Radii.Y, e.Radii.Z))
}

// GeodeticSurfaceNormal returns the unit normal of the surface at the given position.
func (e Ellipsoid) GeodeticSurfaceNormal(c Cartographic) Cartesian3 {
	cosLat := math.Cos(c.Latitude)
	return Cartesian3{
		X: cosLat * math.Cos(c.Longitude),
		Y: cosLat * math.Sin(c.Longitude),
		Z: math.Sin(c.Latitude),
	}.Normalize()
}

// CartographicToCartesian converts a geodetic position to ECEF coordinates.
func (e Ellipsoid) CartographicToCartesian(c Cartographic) Cartesian3 {
	n := e.GeodeticSurfaceNormal(c)
	k := Cartesian3{
		X: e.Radii.X * e.Radii.X * n.X,
		Y: e.Radii.Y * e.Radii.Y * n.Y,
		Z: e.Radii.Z * e.Radii.Z * n.Z,
	}
	gamma := math.Sqrt(n.X*k.X + n.Y*k.Y + n.Z*k.Z)
	if gamma == 0 {
		return Cartesian3{}
	}
	return k.Scale(1 / gamma).Add(n.Scale(c.Height))
}

// DegreesToRadians converts degrees to radians.
func DegreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// RadiansToDegrees converts radians to degrees.
func RadiansToDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}
