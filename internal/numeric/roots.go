package numeric

import "math"

// bracketSlack is the numerical slack applied to the inclusive right
// endpoint of the sampling range.
const bracketSlack = 1e-9

// defaultMaxIter bounds bisection when the caller passes maxIter <= 0.
const defaultMaxIter = 100

// Bracket is a sub-interval [A, B] with F(A)·F(B) ≤ 0, containing at
// least one root of the bracketed function.
type Bracket struct {
	A, B   float64
	FA, FB float64
}

// BracketRoots samples f at a, a+h, a+2h, … up to b (inclusive within
// a small slack) and returns the ordered sub-intervals where f changes
// sign. An exactly-zero sample produces a degenerate bracket of width
// h centered on that sample. Samples that evaluate non-finite never
// participate in a bracket; adjacent pairs containing one are skipped.
func BracketRoots(f func(float64) float64, a, b, h float64) []Bracket {
	if h <= 0 || b < a {
		return nil
	}

	var out []Bracket
	prevT := a
	prevV := f(a)
	if prevV == 0 {
		out = append(out, degenerateBracket(f, a, h))
	}

	for i := 1; prevT < b-bracketSlack; i++ {
		t := a + float64(i)*h
		if t > b {
			t = b
		}
		v := f(t)

		switch {
		case v == 0:
			out = append(out, degenerateBracket(f, t, h))
		case prevV != 0 && isFinite(prevV) && isFinite(v) && (prevV < 0) != (v < 0):
			out = append(out, Bracket{A: prevT, B: t, FA: prevV, FB: v})
		}

		prevT, prevV = t, v
	}

	return out
}

// degenerateBracket builds the width-h bracket centered on a sample
// where f evaluated exactly to zero.
func degenerateBracket(f func(float64) float64, t, h float64) Bracket {
	lo, hi := t-h/2, t+h/2
	return Bracket{A: lo, B: hi, FA: f(lo), FB: f(hi)}
}

// BisectResult is the outcome of a bisection run. Converged is false
// when the tolerance was not reached within the iteration budget; T is
// then the midpoint of the final interval.
type BisectResult struct {
	T          float64
	Converged  bool
	Iterations int
}

// Bisect locates a root of f inside [a, b], where f(a)·f(b) ≤ 0, to
// within absolute tolerance tol. maxIter <= 0 selects the default
// budget of 100 iterations.
//
// The boolean result is false — no root reported — when the endpoints
// do not straddle zero, an endpoint evaluates non-finite, or a midpoint
// evaluation turns non-finite mid-run.
func Bisect(f func(float64) float64, a, b, tol float64, maxIter int) (BisectResult, bool) {
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}

	fa, fb := f(a), f(b)
	if !isFinite(fa) || !isFinite(fb) {
		return BisectResult{}, false
	}
	if fa == 0 {
		return BisectResult{T: a, Converged: true}, true
	}
	if fb == 0 {
		return BisectResult{T: b, Converged: true}, true
	}
	if (fa < 0) == (fb < 0) {
		return BisectResult{}, false
	}

	for i := 1; i <= maxIter; i++ {
		m := (a + b) / 2
		fm := f(m)
		if !isFinite(fm) {
			return BisectResult{}, false
		}
		if fm == 0 {
			return BisectResult{T: m, Converged: true, Iterations: i}, true
		}

		if (fa < 0) != (fm < 0) {
			b = m
		} else {
			a, fa = m, fm
		}

		if b-a <= tol {
			return BisectResult{T: (a + b) / 2, Converged: true, Iterations: i}, true
		}
	}

	return BisectResult{T: (a + b) / 2, Converged: false, Iterations: maxIter}, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
