package gis

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Bounds is an axis-aligned extent in the coordinate system of the dataset it
// was derived from.
type Bounds struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

func (b Bounds) IsZero() bool {
	return b.MinX == 0 && b.MinY == 0 && b.MaxX == 0 && b.MaxY == 0
}

func (b Bounds) Width() float64  { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Buffer grows the extent by d map units on every side. A zero distance
// returns the extent unchanged.
func (b Bounds) Buffer(d float64) Bounds {
	return Bounds{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}

func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

func (b Bounds) Union(o Bounds) Bounds {
	if b.IsZero() {
		return o
	}
	if o.IsZero() {
		return b
	}
	return Bounds{
		MinX: min(b.MinX, o.MinX),
		MinY: min(b.MinY, o.MinY),
		MaxX: max(b.MaxX, o.MaxX),
		MaxY: max(b.MaxY, o.MaxY),
	}
}

// GridSize derives raster dimensions covering the extent at the given
// resolution. Fractional trailing cells are truncated.
func (b Bounds) GridSize(resolution float64) (width, height int) {
	if resolution <= 0 {
		return 0, 0
	}
	return int(b.Width() / resolution), int(b.Height() / resolution)
}

// GeoTransform returns the north-up affine transform placing the grid origin
// at the top-left corner of the extent.
func (b Bounds) GeoTransform(resolution float64) [6]float64 {
	return [6]float64{b.MinX, resolution, 0, b.MaxY, 0, -resolution}
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%g %g %g %g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
