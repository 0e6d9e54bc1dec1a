package model

import "github.com/scanhead-sdk/scanhead-go/internal/scanerr"

// Vertex is a 2D point in mill coordinates.
type Vertex struct {
	XMm float64
	YMm float64
}

// ScanWindow is an ordered list of oriented line constraints (polygon
// edges) in mill coordinates. The affine mill<->camera coordinate math that
// would otherwise live here is out of scope; only the shape validator
// (convex, clockwise, >=3 vertices) is part of the core.
type ScanWindow struct {
	Vertices []Vertex
}

// Validate reports whether w is a valid scan window: at least 3 vertices,
// positive shoelace sum (clockwise in this coordinate convention), and
// every consecutive cross product sharing the same sign (convex).
func (w *ScanWindow) Validate() error {
	n := len(w.Vertices)
	if n < 3 {
		return scanerr.Wrap(scanerr.Argument, scanerr.ErrInvalidPolygon, "need >= 3 vertices, got %d", n)
	}

	shoelace := 0.0
	for i := 0; i < n; i++ {
		a := w.Vertices[i]
		b := w.Vertices[(i+1)%n]
		shoelace += a.XMm*b.YMm - b.XMm*a.YMm
	}
	if shoelace <= 0 {
		return scanerr.Wrap(scanerr.Argument, scanerr.ErrInvalidPolygon, "vertices not clockwise (shoelace sum %f)", shoelace)
	}

	var sign float64
	for i := 0; i < n; i++ {
		a := w.Vertices[i]
		b := w.Vertices[(i+1)%n]
		c := w.Vertices[(i+2)%n]
		cross := (b.XMm-a.XMm)*(c.YMm-b.YMm) - (b.YMm-a.YMm)*(c.XMm-b.XMm)
		if cross == 0 {
			continue
		}
		if sign == 0 {
			sign = cross
		} else if (cross > 0) != (sign > 0) {
			return scanerr.Wrap(scanerr.Argument, scanerr.ErrInvalidPolygon, "vertices not convex at index %d", i)
		}
	}
	return nil
}
