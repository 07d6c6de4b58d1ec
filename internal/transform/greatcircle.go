package transform

import (
	"math"

	"github.com/soniakeys/unit"
)

// Great-circle helpers for shadow-outline tracing. All angles and
// distances are in degrees; distances are great-circle arc.

// WrapLonDeg normalizes a longitude to (−180, 180].
func WrapLonDeg(lon float64) float64 {
	l := math.Mod(lon+180, 360)
	if l <= 0 {
		l += 360
	}
	return l - 180
}

// AngularDistanceDeg returns the great-circle arc between two points
// using the haversine formula.
func AngularDistanceDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := unit.AngleFromDeg(lat1).Rad()
	phi2 := unit.AngleFromDeg(lat2).Rad()
	dPhi := unit.AngleFromDeg(lat2 - lat1).Rad()
	dLambda := unit.AngleFromDeg(lon2 - lon1).Rad()

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return unit.Angle(c).Deg()
}

// InitialBearingDeg returns the forward azimuth from point 1 to point
// 2, normalized to [0, 360).
func InitialBearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := unit.AngleFromDeg(lat1).Rad()
	phi2 := unit.AngleFromDeg(lat2).Rad()
	dLambda := unit.AngleFromDeg(lon2 - lon1).Rad()

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	theta := math.Atan2(y, x)

	deg := unit.Angle(theta).Deg()
	if deg < 0 {
		deg += 360
	}
	return deg
}

// DestinationPoint returns the point reached by travelling distDeg of
// great-circle arc from (latDeg, lonDeg) along the given initial
// bearing. Standard spherical direct formula; the returned longitude
// is normalized to (−180, 180].
func DestinationPoint(latDeg, lonDeg, bearingDeg, distDeg float64) (lat, lon float64) {
	phi1 := unit.AngleFromDeg(latDeg).Rad()
	lambda1 := unit.AngleFromDeg(lonDeg).Rad()
	theta := unit.AngleFromDeg(bearingDeg).Rad()
	delta := unit.AngleFromDeg(distDeg).Rad()

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*sinPhi2,
	)

	return unit.Angle(phi2).Deg(), WrapLonDeg(unit.Angle(lambda2).Deg())
}

// SphericalInterp interpolates between two points by Cartesian-linear
// blending of their unit vectors, then projecting back to the sphere.
// Precision is adequate for the outline-simplification tolerances this
// package is used with; f=0 returns point 1, f=1 point 2.
func SphericalInterp(lat1, lon1, lat2, lon2, f float64) (lat, lon float64) {
	x1, y1, z1 := unitVector(lat1, lon1)
	x2, y2, z2 := unitVector(lat2, lon2)

	x := x1 + (x2-x1)*f
	y := y1 + (y2-y1)*f
	z := z1 + (z2-z1)*f

	return pointFromVector(x, y, z)
}

// unitVector converts geodetic degrees to a unit direction vector.
func unitVector(latDeg, lonDeg float64) (x, y, z float64) {
	sinLat, cosLat := math.Sincos(unit.AngleFromDeg(latDeg).Rad())
	sinLon, cosLon := math.Sincos(unit.AngleFromDeg(lonDeg).Rad())
	return cosLat * cosLon, cosLat * sinLon, sinLat
}

// pointFromVector projects a (not necessarily unit) direction vector
// back to latitude/longitude degrees.
func pointFromVector(x, y, z float64) (lat, lon float64) {
	lat = unit.Angle(math.Atan2(z, math.Hypot(x, y))).Deg()
	lon = WrapLonDeg(unit.Angle(math.Atan2(y, x)).Deg())
	return lat, lon
}
