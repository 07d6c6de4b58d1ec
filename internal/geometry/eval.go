// Package geometry evaluates per-instant shadow geometry for one
// (record, observer) pair: the six Besselian polynomials, the
// observer's fundamental-plane direction cosines, the shadow-axis
// distance Δ, and the penumbral/umbral radii seen at the observer.
//
// The two metric functions the solver roots on are derived here so a
// single cached evaluation backs both:
//
//	f_pen(t) = Δ(t) − L1obs(t)   zeros at C1/C4
//	f_umb(t) = Δ(t) − |L2obs(t)| zeros at C2/C3
package geometry

import (
	"math"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/numeric"
	"github.com/umbra/umbrago/internal/transform"
)

// EvalAtT holds every geometric quantity at one instant, t in hours
// from t0 (TT). Distances are in Earth equatorial radii.
type EvalAtT struct {
	THours float64

	X, Y, D, Mu, L1, L2 float64

	Xi, Eta, Zeta float64

	// Delta is the fundamental-plane distance between the shadow axis
	// and the observer.
	Delta float64

	// L1Obs / L2Obs are the penumbral and umbral cone radii projected
	// to the observer's plane. L2Obs is negative inside a total
	// shadow, positive for an annular one.
	L1Obs, L2Obs float64
}

// Evaluator computes EvalAtT values for one record and observer,
// memoizing on the exact float64 t requested. The cache is per
// Evaluator; Evaluators are single-call, single-goroutine objects and
// share nothing.
type Evaluator struct {
	rec   *catalog.EclipseRecord
	obs   transform.Observer
	cache map[float64]EvalAtT
}

// NewEvaluator creates an Evaluator for the given record and observer.
func NewEvaluator(rec *catalog.EclipseRecord, obs transform.Observer) *Evaluator {
	return &Evaluator{
		rec:   rec,
		obs:   obs,
		cache: make(map[float64]EvalAtT, 512),
	}
}

// At returns the geometry at t hours from t0, computing it at most
// once per distinct t. Keying on the exact bit pattern of t keeps the
// floating-point evaluation order identical across runs.
func (e *Evaluator) At(t float64) EvalAtT {
	if v, ok := e.cache[t]; ok {
		return v
	}

	v := EvalAtT{
		THours: t,
		X:      numeric.Horner(e.rec.X, t),
		Y:      numeric.Horner(e.rec.Y, t),
		D:      numeric.Horner(e.rec.D, t),
		Mu:     numeric.Horner(e.rec.Mu, t),
		L1:     numeric.Horner(e.rec.L1, t),
		L2:     numeric.Horner(e.rec.L2, t),
	}

	v.Xi, v.Eta, v.Zeta = e.obs.Fundamental(v.D, v.Mu)

	v.Delta = math.Hypot(v.X-v.Xi, v.Y-v.Eta)
	v.L1Obs = v.L1 - v.Zeta*e.rec.TanF1
	v.L2Obs = v.L2 - v.Zeta*e.rec.TanF2

	e.cache[t] = v
	return v
}

// PenumbralMetric is Δ − L1obs; its zeros are the external contacts.
func (e *Evaluator) PenumbralMetric(t float64) float64 {
	v := e.At(t)
	return v.Delta - v.L1Obs
}

// UmbralMetric is Δ − |L2obs|; its zeros are the central contacts.
func (e *Evaluator) UmbralMetric(t float64) float64 {
	v := e.At(t)
	return v.Delta - math.Abs(v.L2Obs)
}
