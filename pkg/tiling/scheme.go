package tiling

import (
	"math"

	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// maxMapTileLevel is the deepest level delegated to orb's maptile math.
const maxMapTileLevel = 30

// maxShiftLevel is the deepest level whose tile counts fit an int64 with
// two root tiles. Deeper addresses cannot be represented, so they are invalid.
const maxShiftLevel = 61

// Scheme maps tile addresses to geographic extents.
type Scheme interface {
	// Ellipsoid returns the surface the scheme is defined on.
	Ellipsoid() geo.Ellipsoid

	// Extent returns the area covered by the root tiles.
	Extent() geo.Extent

	// TilesX returns the number of tile columns at the level.
	TilesX(level int) int64

	// TilesY returns the number of tile rows at the level.
	TilesY(level int) int64

	// TileExtent returns the geographic extent of a tile.
	TileExtent(addr Address) geo.Extent

	// IsValid reports whether the address exists in this scheme. Levels
	// deeper than 61 are invalid only because their tile counts overflow
	// int64 indices; no terrain provider imposes a level ceiling of its own.
	IsValid(addr Address) bool
}

// GeographicScheme tiles the globe in equal longitude/latitude steps
// with two root tiles (west and east hemispheres) at level 0.
type GeographicScheme struct {
	ellipsoid geo.Ellipsoid
}

// NewGeographicScheme creates a geographic tiling scheme.
func NewGeographicScheme(e geo.Ellipsoid) *GeographicScheme {
	return &GeographicScheme{ellipsoid: e}
}

// Ellipsoid implements Scheme.
func (s *GeographicScheme) Ellipsoid() geo.Ellipsoid { return s.ellipsoid }

// Extent implements Scheme.
func (s *GeographicScheme) Extent() geo.Extent { return geo.MaxExtent }

// TilesX implements Scheme.
func (s *GeographicScheme) TilesX(level int) int64 { return 2 << uint(level) }

// TilesY implements Scheme.
func (s *GeographicScheme) TilesY(level int) int64 { return 1 << uint(level) }

// IsValid implements Scheme.
func (s *GeographicScheme) IsValid(addr Address) bool {
	return validAddress(s, addr)
}

// TileExtent implements Scheme.
func (s *GeographicScheme) TileExtent(addr Address) geo.Extent {
	full := s.Extent()
	w := full.Width() / float64(s.TilesX(addr.Level))
	h := full.Height() / float64(s.TilesY(addr.Level))

	west := full.West + float64(addr.X)*w
	north := full.North - float64(addr.Y)*h
	return geo.Extent{West: west, South: north - h, East: west + w, North: north}
}

// WebMercatorScheme tiles the globe in the spherical mercator projection
// with a single root tile, matching XYZ web map tiles.
type WebMercatorScheme struct {
	ellipsoid geo.Ellipsoid
}

// NewWebMercatorScheme creates a web mercator tiling scheme.
func NewWebMercatorScheme(e geo.Ellipsoid) *WebMercatorScheme {
	return &WebMercatorScheme{ellipsoid: e}
}

// MaxMercatorLatitude is the latitude where the mercator square ends, in radians.
var MaxMercatorLatitude = math.Atan(math.Sinh(math.Pi))

// Ellipsoid implements Scheme.
func (s *WebMercatorScheme) Ellipsoid() geo.Ellipsoid { return s.ellipsoid }

// Extent implements Scheme.
func (s *WebMercatorScheme) Extent() geo.Extent {
	return geo.Extent{West: -math.Pi, South: -MaxMercatorLatitude, East: math.Pi, North: MaxMercatorLatitude}
}

// TilesX implements Scheme.
func (s *WebMercatorScheme) TilesX(level int) int64 { return 1 << uint(level) }

// TilesY implements Scheme.
func (s *WebMercatorScheme) TilesY(level int) int64 { return 1 << uint(level) }

// IsValid implements Scheme.
func (s *WebMercatorScheme) IsValid(addr Address) bool {
	return validAddress(s, addr)
}

// TileExtent implements Scheme.
func (s *WebMercatorScheme) TileExtent(addr Address) geo.Extent {
	if t, err := addr.MapTile(); err == nil {
		return geo.ExtentFromBound(t.Bound())
	}

	n := float64(s.TilesX(addr.Level))
	return geo.Extent{
		West:  float64(addr.X)/n*2*math.Pi - math.Pi,
		South: mercatorLatitude(float64(addr.Y+1) / n),
		East:  float64(addr.X+1)/n*2*math.Pi - math.Pi,
		North: mercatorLatitude(float64(addr.Y) / n),
	}
}

// TileAt returns the address of the tile containing the position at the level.
func (s *WebMercatorScheme) TileAt(c geo.Cartographic, level int) (Address, bool) {
	if level < 0 || level > maxMapTileLevel || !s.Extent().Contains(c) {
		return Address{}, false
	}
	pt := orb.Point{geo.RadiansToDegrees(c.Longitude), geo.RadiansToDegrees(c.Latitude)}
	return AddressFromMapTile(maptile.At(pt, maptile.Zoom(level))), true
}

// mercatorLatitude converts a normalized mercator row (0 at north) to latitude.
func mercatorLatitude(y float64) float64 {
	return math.Atan(math.Sinh(math.Pi * (1 - 2*y)))
}

// validAddress bounds the level by what Address can index, then checks
// the row and column against the level's grid.
func validAddress(s Scheme, addr Address) bool {
	if addr.Level < 0 || addr.Level > maxShiftLevel {
		return false
	}
	return addr.X >= 0 && addr.Y >= 0 &&
		addr.X < s.TilesX(addr.Level) && addr.Y < s.TilesY(addr.Level)
}
