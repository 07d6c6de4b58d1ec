package geometry

import (
	"math"
	"testing"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/transform"
)

// aug2027 is the reference total-eclipse record used across solver
// tests.
var aug2027 = &catalog.EclipseRecord{
	ID:            "2027-08-02",
	DateYMD:       "2027-08-02",
	Kind:          "total",
	T0TTHours:     10.0,
	DeltaTSeconds: 71.0,
	TanF1:         0.0046077,
	TanF2:         0.0045844,
	X:             []float64{-0.0155225, 0.5747783, 0.0188591, -0.0029015},
	Y:             []float64{0.1587351, -0.1483221, 0.0553724},
	D:             []float64{17.76247, -0.00354, -0.0000051},
	Mu:            []float64{328.422485, 15.0025397},
	L1:            []float64{0.5349481, 0.0000589, -0.0000119},
	L2:            []float64{-0.0150646, 0.0000586, -0.0000118},
}

var gibraltar = transform.NewObserver(36.1408, -5.3536, 0)

func TestEvalAtT0(t *testing.T) {
	ev := NewEvaluator(aug2027, gibraltar)
	v := ev.At(0)

	if v.X != aug2027.X[0] || v.Y != aug2027.Y[0] {
		t.Errorf("polynomials at t=0 must equal constant terms: x=%v y=%v", v.X, v.Y)
	}
	if v.D != 17.76247 || v.Mu != 328.422485 {
		t.Errorf("d/μ at t=0 = %v/%v", v.D, v.Mu)
	}

	// ξ/η/ζ equal the projector's output for d(0), μ(0).
	xi, eta, zeta := gibraltar.Fundamental(v.D, v.Mu)
	if v.Xi != xi || v.Eta != eta || v.Zeta != zeta {
		t.Error("EvalAtT direction cosines differ from projector output")
	}

	// Derived quantities recompute exactly.
	if want := math.Hypot(v.X-v.Xi, v.Y-v.Eta); v.Delta != want {
		t.Errorf("Delta = %v, want %v", v.Delta, want)
	}
	if want := v.L1 - v.Zeta*aug2027.TanF1; v.L1Obs != want {
		t.Errorf("L1Obs = %v, want %v", v.L1Obs, want)
	}
	if want := v.L2 - v.Zeta*aug2027.TanF2; v.L2Obs != want {
		t.Errorf("L2Obs = %v, want %v", v.L2Obs, want)
	}
}

func TestMetricConsistency(t *testing.T) {
	// f_pen and f_umb must equal their definition from the same
	// EvalAtT bit-for-bit, across the whole window.
	ev := NewEvaluator(aug2027, gibraltar)

	for i := -180; i <= 180; i++ {
		tt := float64(i) / 60
		v := ev.At(tt)

		if got := ev.PenumbralMetric(tt); got != v.Delta-v.L1Obs {
			t.Fatalf("t=%v: f_pen = %v, want Δ−L1obs = %v", tt, got, v.Delta-v.L1Obs)
		}
		if got := ev.UmbralMetric(tt); got != v.Delta-math.Abs(v.L2Obs) {
			t.Fatalf("t=%v: f_umb = %v, want Δ−|L2obs| = %v", tt, got, v.Delta-math.Abs(v.L2Obs))
		}
	}
}

func TestEvaluatorCacheDeterminism(t *testing.T) {
	// Repeated evaluation at the same t returns the identical value,
	// and a fresh evaluator reproduces it bit-for-bit.
	ev1 := NewEvaluator(aug2027, gibraltar)
	ev2 := NewEvaluator(aug2027, gibraltar)

	ts := []float64{-2.2924, -1.1794, 0, 0.0462, 2.999999}
	for _, tt := range ts {
		a := ev1.At(tt)
		b := ev1.At(tt)
		c := ev2.At(tt)
		if a != b {
			t.Errorf("t=%v: repeated At() differs", tt)
		}
		if a != c {
			t.Errorf("t=%v: fresh evaluator differs", tt)
		}
	}
}

func TestEvalToleratesNaN(t *testing.T) {
	bad := *aug2027
	bad.X = []float64{math.NaN()}
	ev := NewEvaluator(&bad, gibraltar)

	v := ev.At(0)
	if !math.IsNaN(v.Delta) {
		t.Errorf("Delta = %v, want NaN propagated", v.Delta)
	}
	if !math.IsNaN(ev.PenumbralMetric(0)) {
		t.Error("f_pen should be NaN for NaN polynomial")
	}
}

func BenchmarkEvalAtT(b *testing.B) {
	ev := NewEvaluator(aug2027, gibraltar)
	for i := 0; i < b.N; i++ {
		// Vary t so the cache does not absorb the work.
		ev.cache = make(map[float64]EvalAtT, 1)
		_ = ev.At(float64(i%360-180) / 60)
	}
}
