// Package overlay traces coarse ground-track polygons from an eclipse
// record's Besselian elements: a single outer envelope where any
// partial phase is visible, and a left/right band bounding the
// umbral (or antumbral) track.
//
// The tracer sweeps shadow-axis positions over the eclipse window and,
// at each timestep, searches radially outward from the axis point
// along a fan of bearings for the shadow boundary. Everything is pure
// geometry; no times appear in the output.
package overlay

import (
	"math"
	"sort"

	"github.com/soniakeys/unit"
	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/numeric"
	"github.com/umbra/umbrago/internal/transform"
)

// frame is the shadow geometry at one sweep timestep. The six
// polynomial values are evaluated once per frame and shared by every
// ray traced within it.
type frame struct {
	x, y, d, mu, l1, l2 float64
	tanF1, tanF2        float64
}

func frameAt(rec *catalog.EclipseRecord, t float64) frame {
	return frame{
		x:     numeric.Horner(rec.X, t),
		y:     numeric.Horner(rec.Y, t),
		d:     numeric.Horner(rec.D, t),
		mu:    numeric.Horner(rec.Mu, t),
		l1:    numeric.Horner(rec.L1, t),
		l2:    numeric.Horner(rec.L2, t),
		tanF1: rec.TanF1,
		tanF2: rec.TanF2,
	}
}

// axisPoint returns the geodetic ground point under the shadow axis,
// or ok=false when the axis misses Earth (x²+y² beyond the miss
// threshold).
func (f frame) axisPoint() (lat, lon float64, ok bool) {
	r2 := f.x*f.x + f.y*f.y
	if r2 > axisMissRadiusSq {
		return 0, 0, false
	}

	zeta0 := 0.0
	if r2 < 1 {
		zeta0 = math.Sqrt(1 - r2)
	}

	d := unit.AngleFromDeg(f.d).Rad()
	sinD, cosD := math.Sincos(d)

	sinLat := sinD*zeta0 + f.y*cosD
	if sinLat > 1 {
		sinLat = 1
	} else if sinLat < -1 {
		sinLat = -1
	}
	lat = unit.Angle(math.Asin(sinLat)).Deg()

	h := math.Atan2(f.x, cosD*zeta0-f.y*sinD)
	lon = transform.WrapLonDeg(unit.Angle(h).Deg() - f.mu)

	return clampLat(lat), lon, true
}

// penumbralAt / umbralAt are the shadow metrics at a ground point:
// negative inside the shadow, positive outside.
func (f frame) penumbralAt(lat, lon float64) float64 {
	obs := transform.NewObserver(lat, lon, 0)
	xi, eta, zeta := obs.Fundamental(f.d, f.mu)
	delta := math.Hypot(f.x-xi, f.y-eta)
	return delta - (f.l1 - zeta*f.tanF1)
}

func (f frame) umbralAt(lat, lon float64) float64 {
	obs := transform.NewObserver(lat, lon, 0)
	xi, eta, zeta := obs.Fundamental(f.d, f.mu)
	delta := math.Hypot(f.x-xi, f.y-eta)
	return delta - math.Abs(f.l2-zeta*f.tanF2)
}

// boundaryAlong searches outward from (lat, lon) along one bearing for
// the shadow boundary, out to rMax degrees of arc. Returns ok=false
// when the whole ray is outside the shadow (or the metric turns
// non-finite). A ray that is in-shadow at both ends returns its far
// point: the boundary lies beyond the search radius.
func boundaryAlong(metric func(lat, lon float64) float64, lat, lon, bearing, rMax float64, iters int) (Point, bool) {
	v0 := metric(lat, lon)
	farLat, farLon := transform.DestinationPoint(lat, lon, bearing, rMax)
	vf := metric(farLat, farLon)

	if !finite(v0) || !finite(vf) {
		return Point{}, false
	}
	if v0 >= 0 && vf >= 0 {
		return Point{}, false
	}
	if v0 < 0 && vf < 0 {
		return Point{LatDeg: clampLat(farLat), LonDeg: farLon}, true
	}

	lo, hi := 0.0, rMax
	vLo := v0
	for i := 0; i < iters; i++ {
		mid := (lo + hi) / 2
		mLat, mLon := transform.DestinationPoint(lat, lon, bearing, mid)
		vm := metric(mLat, mLon)
		if !finite(vm) {
			break
		}
		if (vm < 0) == (vLo < 0) {
			lo, vLo = mid, vm
		} else {
			hi = mid
		}
	}

	bLat, bLon := transform.DestinationPoint(lat, lon, bearing, (lo+hi)/2)
	return Point{LatDeg: clampLat(bLat), LonDeg: bLon}, true
}

// outline traces the full bearing fan around an axis point.
func outline(metric func(lat, lon float64) float64, lat, lon float64, bearings int, rMax float64, iters int) []Point {
	pts := make([]Point, 0, bearings)
	step := 360.0 / float64(bearings)
	for i := 0; i < bearings; i++ {
		if p, ok := boundaryAlong(metric, lat, lon, float64(i)*step, rMax, iters); ok {
			pts = append(pts, p)
		}
	}
	return pts
}

// TraceVisible builds the outer penumbra envelope: all per-frame
// outline points bucketed by bearing from their spherical centroid,
// keeping the most distant point per bucket and slerp-filling gaps.
func TraceVisible(rec *catalog.EclipseRecord, cfg Config) []Polygon {
	var all []Point

	for i := 0; ; i++ {
		t := -cfg.WindowHours + float64(i)*cfg.VisibleStepHours
		if t > cfg.WindowHours {
			break
		}
		f := frameAt(rec, t)
		lat, lon, ok := f.axisPoint()
		if !ok {
			continue
		}
		all = append(all, outline(f.penumbralAt, lat, lon, cfg.VisibleBearings, cfg.VisibleRadiusDeg, cfg.BisectIterations)...)
	}

	if len(all) == 0 {
		return nil
	}

	cLat, cLon := centroid(all)

	n := cfg.VisibleBearings
	bucketWidth := 360.0 / float64(n)
	type bucket struct {
		p    Point
		dist float64
		set  bool
	}
	buckets := make([]bucket, n)

	for _, p := range all {
		b := transform.InitialBearingDeg(cLat, cLon, p.LatDeg, p.LonDeg)
		idx := int(b/bucketWidth) % n
		d := transform.AngularDistanceDeg(cLat, cLon, p.LatDeg, p.LonDeg)
		if !buckets[idx].set || d > buckets[idx].dist {
			buckets[idx] = bucket{p: p, dist: d, set: true}
		}
	}

	// Fill empty buckets by interpolating between the nearest filled
	// neighbors around the ring.
	var filled int
	for _, b := range buckets {
		if b.set {
			filled++
		}
	}
	if filled == 0 {
		return nil
	}

	ring := make(Polygon, 0, n+1)
	for i := 0; i < n; i++ {
		if buckets[i].set {
			ring = append(ring, buckets[i].p)
			continue
		}

		prev, next, span, off := ringNeighbors(i, n, func(j int) bool { return buckets[j].set })
		la, lo := transform.SphericalInterp(
			buckets[prev].p.LatDeg, buckets[prev].p.LonDeg,
			buckets[next].p.LatDeg, buckets[next].p.LonDeg,
			float64(off)/float64(span),
		)
		ring = append(ring, Point{LatDeg: clampLat(la), LonDeg: lo})
	}

	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return []Polygon{ring}
}

// ringNeighbors finds, for an empty slot i on a ring of size n, the
// nearest filled slots before and after it, the span between them and
// i's offset from the earlier one.
func ringNeighbors(i, n int, set func(int) bool) (prev, next, span, off int) {
	prev = i
	for off = 0; !set(prev); off++ {
		prev = (prev - 1 + n) % n
	}
	next = i
	steps := 0
	for !set(next) {
		next = (next + 1) % n
		steps++
	}
	span = off + steps
	return prev, next, span, off
}

// centroid is the spherical mean of a point set.
func centroid(pts []Point) (lat, lon float64) {
	var x, y, z float64
	for _, p := range pts {
		sinLat, cosLat := math.Sincos(unit.AngleFromDeg(p.LatDeg).Rad())
		sinLon, cosLon := math.Sincos(unit.AngleFromDeg(p.LonDeg).Rad())
		x += cosLat * cosLon
		y += cosLat * sinLon
		z += sinLat
	}
	lat = unit.Angle(math.Atan2(z, math.Hypot(x, y))).Deg()
	lon = transform.WrapLonDeg(unit.Angle(math.Atan2(y, x)).Deg())
	return lat, lon
}

// centralFrame is one timestep's umbral outline with its axis point
// and the cross-track extremes.
type centralFrame struct {
	lat, lon float64
	pts      []Point
}

// TraceCentral builds the umbra/antumbra band: per-frame outlines are
// projected onto the axis perpendicular to the overall sweep
// direction; the extreme left/right points form the band edges, the
// first and last outlines its caps.
func TraceCentral(rec *catalog.EclipseRecord, cfg Config) []Polygon {
	var frames []centralFrame

	for i := 0; ; i++ {
		t := -cfg.WindowHours + float64(i)*cfg.CentralStepHours
		if t > cfg.WindowHours {
			break
		}
		f := frameAt(rec, t)
		lat, lon, ok := f.axisPoint()
		if !ok {
			continue
		}
		pts := outline(f.umbralAt, lat, lon, cfg.CentralBearings, cfg.CentralRadiusDeg, cfg.BisectIterations)
		if len(pts) == 0 {
			continue
		}
		frames = append(frames, centralFrame{lat: lat, lon: lon, pts: pts})
	}

	if len(frames) < 2 {
		return nil
	}

	first, last := frames[0], frames[len(frames)-1]
	sweep := transform.InitialBearingDeg(first.lat, first.lon, last.lat, last.lon)
	sweepRad := unit.AngleFromDeg(sweep).Rad()
	dirE, dirN := math.Sin(sweepRad), math.Cos(sweepRad)
	// Left is 90° counterclockwise from the sweep direction.
	leftE, leftN := -dirN, dirE

	cross := func(f centralFrame, p Point) float64 {
		dLon := lonDelta(p.LonDeg, f.lon)
		dE := dLon * math.Cos(unit.AngleFromDeg(f.lat).Rad())
		dN := p.LatDeg - f.lat
		return dE*leftE + dN*leftN
	}

	leftEdge := make([]Point, 0, len(frames))
	rightEdge := make([]Point, 0, len(frames))
	for _, f := range frames {
		var lp, rp Point
		lv, rv := math.Inf(-1), math.Inf(1)
		for _, p := range f.pts {
			c := cross(f, p)
			if c > lv {
				lv, lp = c, p
			}
			if c < rv {
				rv, rp = c, p
			}
		}
		leftEdge = append(leftEdge, lp)
		rightEdge = append(rightEdge, rp)
	}

	sortByCross := func(f centralFrame) []Point {
		pts := append([]Point(nil), f.pts...)
		sort.SliceStable(pts, func(i, j int) bool {
			return cross(f, pts[i]) < cross(f, pts[j])
		})
		return pts
	}

	tol := cfg.SimplifyToleranceDeg
	band := make(Polygon, 0, 2*len(frames)+len(first.pts)+len(last.pts))
	band = append(band, Simplify(leftEdge, tol)...)

	// Trailing cap: cross the band's far end from left to right.
	trailing := sortByCross(last)
	for i := len(trailing) - 1; i >= 0; i-- {
		band = append(band, trailing[i])
	}

	right := Simplify(rightEdge, tol)
	for i := len(right) - 1; i >= 0; i-- {
		band = append(band, right[i])
	}

	// Leading cap: back across the near end from right to left.
	band = append(band, sortByCross(first)...)

	if len(band) > 0 {
		band = append(band, band[0])
	}
	return []Polygon{band}
}

// Frame is a single sweep timestep for streaming consumers: the
// shadow-axis ground point and the umbral outline at that instant.
type Frame struct {
	THours  float64 `json:"t_hours"`
	AxisLat float64 `json:"axis_lat"`
	AxisLon float64 `json:"axis_lon"`
	Umbra   []Point `json:"umbra,omitempty"`
}

// FrameAt traces one streaming frame. ok=false when the shadow axis
// misses Earth at t.
func FrameAt(rec *catalog.EclipseRecord, t float64, cfg Config) (Frame, bool) {
	f := frameAt(rec, t)
	lat, lon, ok := f.axisPoint()
	if !ok {
		return Frame{}, false
	}
	return Frame{
		THours:  t,
		AxisLat: lat,
		AxisLon: lon,
		Umbra:   outline(f.umbralAt, lat, lon, cfg.CentralBearings, cfg.CentralRadiusDeg, cfg.BisectIterations),
	}, true
}

// Build produces both overlay sets for a record.
func Build(rec *catalog.EclipseRecord, cfg Config) Overlays {
	return Overlays{
		Visible: TraceVisible(rec, cfg),
		Central: TraceCentral(rec, cfg),
	}
}

// lonDelta is a longitude difference adjusted for dateline crossings.
func lonDelta(lon, ref float64) float64 {
	d := lon - ref
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
