// Package circumstances computes local eclipse circumstances — the
// four contact times, maximum obscuration, classification, magnitude
// and central duration — for an observer site against one eclipse
// record's Besselian elements.
//
// A solve is pure and self-contained: it builds a per-call geometry
// evaluator, roots the penumbral and umbral metrics over a ±3 h window
// around t0, and packages the results with UTC-converted times.
// Numerical degeneracy (NaN polynomials, empty coefficients, no roots)
// never produces an error; it is encoded in the returned value. The
// only error condition is a record date that cannot form instants at
// all.
package circumstances

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/geometry"
	"github.com/umbra/umbrago/internal/numeric"
	"github.com/umbra/umbrago/internal/timescale"
	"github.com/umbra/umbrago/internal/transform"
)

// Compute solves local circumstances for one record and site.
func Compute(rec *catalog.EclipseRecord, site Site, cfg Config) (Circumstances, error) {
	tt0, err := timescale.ParseTT(rec.DateYMD, rec.T0TTHours)
	if err != nil {
		return Circumstances{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}

	obs := transform.NewObserver(site.LatDeg, site.LonDeg, site.ElevM)
	ev := geometry.NewEvaluator(rec, obs)

	w := cfg.WindowHours
	penBrackets := numeric.BracketRoots(ev.PenumbralMetric, -w, w, cfg.CoarseStepHours)
	penRoots := refineRoots(ev.PenumbralMetric, penBrackets, cfg)
	umbBrackets := numeric.BracketRoots(ev.UmbralMetric, -w, w, cfg.CoarseStepHours)
	umbRoots := refineRoots(ev.UmbralMetric, umbBrackets, cfg)

	var c1, c2, c3, c4 *float64
	if len(penRoots) >= 1 {
		c1 = &penRoots[0]
	}
	if len(penRoots) >= 2 {
		c4 = &penRoots[len(penRoots)-1]
	}
	if len(umbRoots) >= 2 {
		c2 = &umbRoots[0]
		c3 = &umbRoots[len(umbRoots)-1]
	}

	out := Circumstances{
		EclipseID: rec.ID,
		Visible:   c1 != nil && c4 != nil,
		Kind:      KindNone,
	}

	// Maximum-obscuration selection.
	var maxT float64
	central := out.Visible && c2 != nil && c3 != nil && *c3 > *c2
	switch {
	case central:
		maxT = scanMinimum(ev.UmbralMetric, *c2, *c3, cfg.FineStepHours)
		if ev.At(maxT).L2Obs < 0 {
			out.Kind = KindTotal
		} else {
			out.Kind = KindAnnular
		}
	case out.Visible:
		maxT = scanMinimum(ev.PenumbralMetric, *c1, *c4, cfg.FineStepHours)
		out.Kind = KindPartial
	default:
		maxT = scanMinimum(func(t float64) float64 { return ev.At(t).Delta }, -w, w, cfg.FineStepHours)
	}

	// UTC composition.
	toUTC := func(t *float64) string {
		if t == nil || !finite(*t) {
			return ""
		}
		utc := timescale.ToUTC(timescale.AtOffset(tt0, *t), rec.DeltaTSeconds)
		return timescale.FormatISO(utc)
	}
	out.C1UTC = toUTC(c1)
	out.C2UTC = toUTC(c2)
	out.C3UTC = toUTC(c3)
	out.C4UTC = toUTC(c4)
	out.MaxUTC = toUTC(&maxT)

	// Central duration.
	if c2 != nil && c3 != nil && *c3 > *c2 {
		dur := (*c3 - *c2) * 3600
		out.DurationSeconds = &dur
	}

	// Magnitude at the selected maximum.
	atMax := ev.At(maxT)
	if out.Visible && finite(atMax.L1Obs) && finite(atMax.Delta) && atMax.L1Obs > 0 {
		var mag float64
		if out.Kind == KindTotal || out.Kind == KindAnnular {
			mag = 1.0
		} else {
			mag = clamp01((atMax.L1Obs - atMax.Delta) / atMax.L1Obs)
		}
		if finite(mag) {
			out.Magnitude = &mag
		}
	}

	if cfg.Debug {
		out.Debug = &Debug{
			PenumbralRoots: penRoots,
			UmbralRoots:    umbRoots,
			PenBrackets:    len(penBrackets),
			UmbBrackets:    len(umbBrackets),
			MaxTHours:      maxT,
		}
	}

	return out, nil
}

// ContactTimes converts a result's UTC strings back to instants,
// skipping absent contacts. Used by callers that need time arithmetic
// on the output (duration checks, countdown-style consumers).
func ContactTimes(c Circumstances) map[string]time.Time {
	out := make(map[string]time.Time, 5)
	for name, s := range map[string]string{
		"c1": c.C1UTC, "c2": c.C2UTC, "max": c.MaxUTC, "c3": c.C3UTC, "c4": c.C4UTC,
	} {
		if s == "" {
			continue
		}
		if t, err := time.Parse("2006-01-02T15:04:05.000Z", s); err == nil {
			out[name] = t
		}
	}
	return out
}

// refineRoots bisects every bracket and returns the sorted finite
// roots. Brackets whose bisection aborts (non-finite values) are
// dropped silently.
func refineRoots(f func(float64) float64, brackets []numeric.Bracket, cfg Config) []float64 {
	roots := make([]float64, 0, len(brackets))
	for _, br := range brackets {
		res, ok := numeric.Bisect(f, br.A, br.B, cfg.TolHours, cfg.MaxIterations)
		if !ok || !finite(res.T) {
			continue
		}
		roots = append(roots, res.T)
	}
	sort.Float64s(roots)
	return roots
}

// scanMinimum walks [a, b] at the given step and returns the sample t
// with the smallest f value. The scan grid starts exactly at a, so the
// returned time is quantized to a + k·step; this matches the reference
// snapshots and keeps the metric cache hot on revisits.
func scanMinimum(f func(float64) float64, a, b, step float64) float64 {
	bestT := a
	bestV := f(a)
	for i := 1; ; i++ {
		t := a + float64(i)*step
		if t > b {
			break
		}
		v := f(t)
		if finite(v) && (v < bestV || !finite(bestV)) {
			bestT, bestV = t, v
		}
	}
	return bestT
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
