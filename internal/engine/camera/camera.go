// Package camera provides the globe camera for the terrain viewer.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GlobeCamera orbits the earth center in earth-centered fixed coordinates
// (Z up).
type GlobeCamera struct {
	// Radius of the globe being viewed, meters
	Radius float32

	// Spherical coordinates
	Distance  float32 // Distance from the earth center
	Longitude float32 // Radians, yaw around Z
	Latitude  float32 // Radians, pitch above the equator

	// Constraints
	MinAltitude float32
	MaxDistance float32
	MaxLatitude float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32

	FOV float32 // Vertical field of view, radians
}

// NewGlobeCamera creates a camera three radii out, looking at longitude 0.
func NewGlobeCamera(radius float32) *GlobeCamera {
	return &GlobeCamera{
		Radius:          radius,
		Distance:        radius * 3,
		MinAltitude:     radius * 0.001,
		MaxDistance:     radius * 20,
		MaxLatitude:     mgl32.DegToRad(89),
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		FOV:             mgl32.DegToRad(45),
	}
}

// Altitude returns the distance above the globe surface.
func (c *GlobeCamera) Altitude() float32 {
	return c.Distance - c.Radius
}

// Position returns the camera position in world space.
func (c *GlobeCamera) Position() mgl32.Vec3 {
	cosLat := float32(math.Cos(float64(c.Latitude)))
	return mgl32.Vec3{
		c.Distance * cosLat * float32(math.Cos(float64(c.Longitude))),
		c.Distance * cosLat * float32(math.Sin(float64(c.Longitude))),
		c.Distance * float32(math.Sin(float64(c.Latitude))),
	}
}

// ViewMatrix returns the view matrix for this camera.
func (c *GlobeCamera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), mgl32.Vec3{}, mgl32.Vec3{0, 0, 1})
}

// ProjectionMatrix returns a perspective projection whose depth range
// follows the altitude so near terrain keeps its precision.
func (c *GlobeCamera) ProjectionMatrix(aspect float32) mgl32.Mat4 {
	near := c.Altitude() * 0.1
	if near < 1 {
		near = 1
	}
	far := c.Distance + c.Radius*2
	return mgl32.Perspective(c.FOV, aspect, near, far)
}

// ViewProjection returns projection * view.
func (c *GlobeCamera) ViewProjection(aspect float32) mgl32.Mat4 {
	return c.ProjectionMatrix(aspect).Mul4(c.ViewMatrix())
}

// HandleDrag rotates around the globe. Closer to the surface a pixel
// covers less angle.
func (c *GlobeCamera) HandleDrag(deltaX, deltaY float32) {
	scale := c.DragSensitivity * c.Altitude() / c.Radius
	c.Longitude -= deltaX * scale
	c.Latitude += deltaY * scale

	c.Latitude = mgl32.Clamp(c.Latitude, -c.MaxLatitude, c.MaxLatitude)
	c.Longitude = float32(math.Remainder(float64(c.Longitude), 2*math.Pi))
}

// HandleZoom moves toward or away from the surface by a fraction of the
// current altitude.
func (c *GlobeCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Altitude() * c.ZoomSensitivity
	c.Distance = mgl32.Clamp(c.Distance, c.Radius+c.MinAltitude, c.MaxDistance)
}

// LookAt places the camera above a geographic position in radians.
func (c *GlobeCamera) LookAt(longitude, latitude float32) {
	c.Longitude = longitude
	c.Latitude = mgl32.Clamp(latitude, -c.MaxLatitude, c.MaxLatitude)
}
