package transform

import (
	"math"

	"github.com/soniakeys/unit"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // equatorial radius (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Observer holds a ground observer's geodetic position with the
// geocentric terms ρ·cosφ′ and ρ·sinφ′ precomputed once, so they can
// be reused across the many per-instant projections a solve performs.
// Both are in units of the Earth's equatorial radius.
type Observer struct {
	LatRad, LonRad float64
	ElevM          float64

	rhoCosPhi float64
	rhoSinPhi float64
}

// NewObserver creates an Observer from geodetic coordinates. Latitude
// and longitude are in degrees (east positive), elevation in meters
// above the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, elevM float64) Observer {
	lat := unit.AngleFromDeg(latDeg).Rad()
	lon := unit.AngleFromDeg(lonDeg).Rad()

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical, in equatorial radii.
	n := 1 / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	h := elevM / wgs84A

	return Observer{
		LatRad:    lat,
		LonRad:    lon,
		ElevM:     elevM,
		rhoCosPhi: (n + h) * cosLat,
		rhoSinPhi: (n*(1-wgs84E2) + h) * sinLat,
	}
}

// Fundamental projects the observer into the fundamental-plane frame
// for a shadow axis at declination dDeg and Greenwich hour angle
// muDeg (both degrees). The returned direction cosines (ξ, η, ζ) are
// dimensionless, in units of the Earth's equatorial radius, matching
// the Besselian x, y, l1, l2 quantities.
//
// The local hour angle is H = μ + λ with east-positive longitude. The
// evaluation order below is fixed: reassociating it moves last-bit
// results and breaks millisecond-level contact-time snapshots.
func (o Observer) Fundamental(dDeg, muDeg float64) (xi, eta, zeta float64) {
	d := unit.AngleFromDeg(dDeg).Rad()
	mu := unit.AngleFromDeg(muDeg).Rad()
	h := mu + o.LonRad

	sinH, cosH := math.Sincos(h)
	sinD, cosD := math.Sincos(d)

	xi = o.rhoCosPhi * sinH
	eta = o.rhoSinPhi*cosD - o.rhoCosPhi*cosH*sinD
	zeta = o.rhoSinPhi*sinD + o.rhoCosPhi*cosH*cosD
	return xi, eta, zeta
}
