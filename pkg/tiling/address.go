// Package tiling maps quadtree tile addresses to geographic extents on an ellipsoid.
package tiling

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// Address identifies a node in the tile quadtree.
// X grows eastward and Y grows southward from the north-west corner.
type Address struct {
	Level int
	X     int64
	Y     int64
}

// NewAddress creates a tile address.
func NewAddress(level int, x, y int64) Address {
	return Address{Level: level, X: x, Y: y}
}

// String returns the address as "level/x/y".
func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Level, a.X, a.Y)
}

// Parent returns the address one level up. Root tiles have no parent.
func (a Address) Parent() (Address, bool) {
	if a.Level <= 0 {
		return Address{}, false
	}
	return Address{Level: a.Level - 1, X: a.X >> 1, Y: a.Y >> 1}, true
}

// Children returns the four child addresses in NW, NE, SW, SE order.
func (a Address) Children() [4]Address {
	l := a.Level + 1
	x, y := a.X<<1, a.Y<<1
	return [4]Address{
		{Level: l, X: x, Y: y},
		{Level: l, X: x + 1, Y: y},
		{Level: l, X: x, Y: y + 1},
		{Level: l, X: x + 1, Y: y + 1},
	}
}

// MapTile converts the address to an orb maptile.Tile.
// It fails for addresses that do not fit maptile's 32-bit coordinates.
func (a Address) MapTile() (maptile.Tile, error) {
	if a.Level < 0 || a.Level > maxMapTileLevel || a.X < 0 || a.Y < 0 ||
		a.X > int64(^uint32(0)) || a.Y > int64(^uint32(0)) {
		return maptile.Tile{}, fmt.Errorf("address %s does not fit a maptile", a)
	}
	return maptile.New(uint32(a.X), uint32(a.Y), maptile.Zoom(a.Level)), nil
}

// AddressFromMapTile converts an orb maptile.Tile to an address.
func AddressFromMapTile(t maptile.Tile) Address {
	return Address{Level: int(t.Z), X: int64(t.X), Y: int64(t.Y)}
}
