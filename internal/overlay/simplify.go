package overlay

import "math"

// Simplify reduces a polyline with the Douglas–Peucker algorithm at
// the given angular tolerance (degrees). Endpoints are always kept.
// Longitude deltas are dateline-adjusted so a polyline crossing ±180°
// does not produce spurious detail.
func Simplify(pts []Point, tolDeg float64) []Point {
	if len(pts) <= 2 || tolDeg <= 0 {
		return pts
	}

	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true
	simplifySegment(pts, 0, len(pts)-1, tolDeg, keep)

	out := make([]Point, 0, len(pts))
	for i, p := range pts {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func simplifySegment(pts []Point, lo, hi int, tol float64, keep []bool) {
	if hi-lo < 2 {
		return
	}

	var maxDist float64
	maxIdx := -1
	for i := lo + 1; i < hi; i++ {
		d := perpDistanceDeg(pts[i], pts[lo], pts[hi])
		if d > maxDist {
			maxDist, maxIdx = d, i
		}
	}

	if maxIdx < 0 || maxDist <= tol {
		return
	}

	keep[maxIdx] = true
	simplifySegment(pts, lo, maxIdx, tol, keep)
	simplifySegment(pts, maxIdx, hi, tol, keep)
}

// perpDistanceDeg is the planar point-to-segment distance in degree
// space, with longitudes unwrapped relative to the segment start.
func perpDistanceDeg(p, a, b Point) float64 {
	px := lonDelta(p.LonDeg, a.LonDeg)
	py := p.LatDeg - a.LatDeg
	bx := lonDelta(b.LonDeg, a.LonDeg)
	by := b.LatDeg - a.LatDeg

	segLenSq := bx*bx + by*by
	if segLenSq == 0 {
		return math.Hypot(px, py)
	}

	t := (px*bx + py*by) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(px-t*bx, py-t*by)
}
