package tile

import (
	"fmt"
	"math"
)

const (
	// Size is the pixel edge length of a standard raster tile.
	Size = 256

	// MaxZoom is the deepest level common slippy-map servers publish.
	MaxZoom = 22
)

// Coord identifies one raster tile in the quad-tree tiling scheme.
// Compared by value; usable as a map key.
type Coord struct {
	Zoom int
	X    int
	Y    int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

// Valid reports whether the coordinate addresses an existing tile at
// its zoom level.
func (c Coord) Valid() bool {
	if c.Zoom < 0 || c.Zoom > MaxZoom {
		return false
	}
	n := 1 << uint(c.Zoom)
	return c.X >= 0 && c.X < n && c.Y >= 0 && c.Y < n
}

// Rect is a geographic bounding rectangle in degrees.
type Rect struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Bounds returns the geographic rectangle the tile covers under the
// web-mercator projection. Used to position the tile on the map.
func (c Coord) Bounds() Rect {
	return Rect{
		MinLat: tileLat(c.Y+1, c.Zoom),
		MinLon: tileLon(c.X, c.Zoom),
		MaxLat: tileLat(c.Y, c.Zoom),
		MaxLon: tileLon(c.X+1, c.Zoom),
	}
}

func tileLon(x, zoom int) float64 {
	n := math.Pow(2, float64(zoom))
	return float64(x)/n*360.0 - 180.0
}

func tileLat(y, zoom int) float64 {
	n := math.Pow(2, float64(zoom))
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	return latRad * 180.0 / math.Pi
}
