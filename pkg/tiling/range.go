package tiling

import "github.com/Faultbox/midgard-terrain/pkg/geo"

// Range is an inclusive block of tile columns and rows at one level.
type Range struct {
	Level      int
	MinX, MaxX int64
	MinY, MaxY int64
}

// Columns returns the number of columns in the range.
func (r Range) Columns() int64 { return r.MaxX - r.MinX + 1 }

// Rows returns the number of rows in the range.
func (r Range) Rows() int64 { return r.MaxY - r.MinY + 1 }

// Overlapping returns the tiles at level whose extents overlap e, in the
// sense of geo.Extent.Intersects. It reports false when the level is not
// valid in s or no tile overlaps. Only O(log n) tile extents are
// evaluated, so deep levels cost no more than shallow ones.
func Overlapping(s Scheme, level int, e geo.Extent) (Range, bool) {
	if !s.IsValid(NewAddress(level, 0, 0)) {
		return Range{}, false
	}
	nx, ny := s.TilesX(level), s.TilesY(level)
	col := func(x int64) geo.Extent { return s.TileExtent(NewAddress(level, x, 0)) }
	row := func(y int64) geo.Extent { return s.TileExtent(NewAddress(level, 0, y)) }

	// Columns run west to east, rows north to south.
	r := Range{
		Level: level,
		MinX:  search(nx, func(x int64) bool { return col(x).East > e.West }),
		MaxX:  search(nx, func(x int64) bool { return col(x).West >= e.East }) - 1,
		MinY:  search(ny, func(y int64) bool { return row(y).South < e.North }),
		MaxY:  search(ny, func(y int64) bool { return row(y).North <= e.South }) - 1,
	}
	if r.MinX > r.MaxX || r.MinY > r.MaxY {
		return Range{}, false
	}
	return r, true
}

// search returns the smallest i in [0, n) for which f is true, or n.
// f must be false and then true over the interval.
func search(n int64, f func(int64) bool) int64 {
	lo, hi := int64(0), n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if f(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
