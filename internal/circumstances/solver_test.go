package circumstances

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/timescale"
)

// Reference records. aug2027 is the 2027-08-02 total eclipse
// (Gibraltar–Egypt track); the annular and partial variants share its
// axis geometry with the umbral radius flipped / the track shifted
// north, giving known-classification fixtures.
var aug2027 = catalog.EclipseRecord{
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

var annular2028 = func() catalog.EclipseRecord {
	rec := aug2027
	rec.ID = "2028-01-26"
	rec.DateYMD = "2028-01-26"
	rec.Kind = "annular"
	rec.L2 = []float64{0.0150646, 0.0000586, -0.0000118}
	return rec
}()

var partial2025 = func() catalog.EclipseRecord {
	rec := aug2027
	rec.ID = "2025-03-29"
	rec.DateYMD = "2025-03-29"
	rec.Kind = "partial"
	rec.Y = []float64{0.62, -0.1483221, 0.0553724}
	return rec
}()

var (
	gibraltar  = Site{LatDeg: 36.1408, LonDeg: -5.3536}
	luxorLine  = Site{LatDeg: 26 + 53.3/60, LonDeg: 31 + 0.8/60} // central line at 10:00 UT
	antarctica = Site{LatDeg: -80, LonDeg: 120}
	madrid     = Site{LatDeg: 40.4168, LonDeg: -3.7038}
)

// wantTime asserts an ISO-8601 contact string within tol of want.
func wantTime(t *testing.T, label, got, want string, tol time.Duration) {
	t.Helper()
	if got == "" {
		t.Fatalf("%s: missing, want %s", label, want)
	}
	gt, err := time.Parse("2006-01-02T15:04:05.000Z", got)
	if err != nil {
		t.Fatalf("%s: unparseable %q: %v", label, got, err)
	}
	wt, err := time.Parse("2006-01-02T15:04:05.000Z", want)
	if err != nil {
		t.Fatalf("%s: bad expectation %q: %v", label, want, err)
	}
	if d := gt.Sub(wt); d > tol || d < -tol {
		t.Errorf("%s = %s, want %s (±%v)", label, got, want, tol)
	}
}

func TestComputeGibraltarTotality(t *testing.T) {
	c, err := Compute(&aug2027, gibraltar, DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !c.Visible {
		t.Fatal("Gibraltar should see the 2027-08-02 eclipse")
	}
	if c.Kind != KindTotal {
		t.Fatalf("kind = %s, want total", c.Kind)
	}
	if c.Magnitude == nil || *c.Magnitude != 1.0 {
		t.Errorf("magnitude = %v, want 1.0", c.Magnitude)
	}

	const tol = 50 * time.Millisecond
	wantTime(t, "C1", c.C1UTC, "2027-08-02T07:41:16.358Z", tol)
	wantTime(t, "C2", c.C2UTC, "2027-08-02T08:45:51.154Z", tol)
	wantTime(t, "max", c.MaxUTC, "2027-08-02T08:48:03.154Z", tol)
	wantTime(t, "C3", c.C3UTC, "2027-08-02T08:50:20.221Z", tol)
	wantTime(t, "C4", c.C4UTC, "2027-08-02T10:01:35.360Z", tol)

	if c.DurationSeconds == nil {
		t.Fatal("central duration missing")
	}
	if math.Abs(*c.DurationSeconds-269.067) > 0.1 {
		t.Errorf("duration = %.3f s, want ≈269.067", *c.DurationSeconds)
	}
}

func TestComputeCentralLine(t *testing.T) {
	c, err := Compute(&aug2027, luxorLine, DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !c.Visible || c.Kind != KindTotal {
		t.Fatalf("visible=%v kind=%s, want visible total", c.Visible, c.Kind)
	}
	if c.DurationSeconds == nil || math.Abs(*c.DurationSeconds-379.480) > 0.1 {
		t.Errorf("duration = %v, want ≈379.480 s", c.DurationSeconds)
	}
	wantTime(t, "max", c.MaxUTC, "2027-08-02T10:00:02.259Z", 50*time.Millisecond)
}

func TestComputeNotVisible(t *testing.T) {
	c, err := Compute(&aug2027, antarctica, DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if c.Visible {
		t.Error("Antarctic interior should not see this eclipse")
	}
	if c.Kind != KindNone {
		t.Errorf("kind = %s, want none", c.Kind)
	}
	if c.C1UTC != "" || c.C2UTC != "" || c.C3UTC != "" || c.C4UTC != "" {
		t.Error("no contact times should be present")
	}
	if c.MaxUTC == "" {
		t.Error("max time must still be present (Δ-minimum fallback)")
	}
	wantTime(t, "max", c.MaxUTC, "2027-08-02T10:34:49.000Z", 2*time.Second)
	if c.Magnitude != nil {
		t.Errorf("magnitude should be absent, got %v", *c.Magnitude)
	}
	if c.DurationSeconds != nil {
		t.Error("duration should be absent")
	}
}

func TestComputePartialSite(t *testing.T) {
	// Madrid lies inside the 2027 penumbra but outside the umbral track.
	c, err := Compute(&aug2027, madrid, DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !c.Visible || c.Kind != KindPartial {
		t.Fatalf("visible=%v kind=%s, want visible partial", c.Visible, c.Kind)
	}
	if c.C2UTC != "" || c.C3UTC != "" {
		t.Error("partial site must have no central contacts")
	}
	if c.DurationSeconds != nil {
		t.Error("partial site must have no central duration")
	}
	if c.Magnitude == nil {
		t.Fatal("partial magnitude missing")
	}
	if math.Abs(*c.Magnitude-0.846385) > 0.001 {
		t.Errorf("magnitude = %.6f, want ≈0.846385", *c.Magnitude)
	}
	wantTime(t, "C1", c.C1UTC, "2027-08-02T07:43:07.913Z", 50*time.Millisecond)
	wantTime(t, "C4", c.C4UTC, "2027-08-02T10:03:15.621Z", 50*time.Millisecond)
}

func TestComputeAnnular(t *testing.T) {
	c, err := Compute(&annular2028, luxorLine, DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !c.Visible || c.Kind != KindAnnular {
		t.Fatalf("visible=%v kind=%s, want visible annular", c.Visible, c.Kind)
	}
	if c.Magnitude == nil || *c.Magnitude != 1.0 {
		t.Errorf("central magnitude = %v, want 1.0", c.Magnitude)
	}
	if c.DurationSeconds == nil || math.Abs(*c.DurationSeconds-204.205) > 0.1 {
		t.Errorf("duration = %v, want ≈204.205 s", c.DurationSeconds)
	}
	wantTime(t, "C2", c.C2UTC, "2028-01-26T09:58:17.919Z", 50*time.Millisecond)
	wantTime(t, "C3", c.C3UTC, "2028-01-26T10:01:42.124Z", 50*time.Millisecond)
}

func TestContactOrdering(t *testing.T) {
	// P5: central sites order C1 < C2 < max < C3 < C4 strictly;
	// partial sites order C1 < max < C4 with no C2/C3.
	cases := []struct {
		name    string
		rec     *catalog.EclipseRecord
		site    Site
		central bool
	}{
		{"total gibraltar", &aug2027, gibraltar, true},
		{"total central line", &aug2027, luxorLine, true},
		{"annular central line", &annular2028, luxorLine, true},
		{"partial madrid", &aug2027, madrid, false},
		{"partial record gibraltar", &partial2025, gibraltar, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Compute(tc.rec, tc.site, DefaultConfig())
			if err != nil {
				t.Fatal(err)
			}
			ct := ContactTimes(c)

			if tc.central {
				for _, k := range []string{"c1", "c2", "max", "c3", "c4"} {
					if _, ok := ct[k]; !ok {
						t.Fatalf("missing %s", k)
					}
				}
				if !(ct["c1"].Before(ct["c2"]) && ct["c2"].Before(ct["max"]) &&
					ct["max"].Before(ct["c3"]) && ct["c3"].Before(ct["c4"])) {
					t.Errorf("ordering violated: %v", c)
				}
			} else {
				if _, ok := ct["c2"]; ok {
					t.Error("unexpected C2")
				}
				if !(ct["c1"].Before(ct["max"]) && ct["max"].Before(ct["c4"])) {
					t.Errorf("partial ordering violated: %v", c)
				}
			}
		})
	}
}

func TestDurationMatchesContactTimes(t *testing.T) {
	// P6: duration equals C3 − C2 of the UTC output within 1 ms.
	c, err := Compute(&aug2027, gibraltar, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ct := ContactTimes(c)

	gap := ct["c3"].Sub(ct["c2"]).Seconds()
	if math.Abs(gap-*c.DurationSeconds) > 0.001 {
		t.Errorf("duration %.6f s vs UTC gap %.6f s", *c.DurationSeconds, gap)
	}
}

func TestMagnitudeDecreasesOffTrack(t *testing.T) {
	// P8: partial magnitude falls as the site moves away from the
	// central track.
	sites := []Site{
		{LatDeg: 40.0, LonDeg: -3.7},
		{LatDeg: 43.0, LonDeg: -3.7},
		{LatDeg: 46.0, LonDeg: -3.7},
		{LatDeg: 49.0, LonDeg: -3.7},
	}

	var prev float64 = 1.1
	for _, site := range sites {
		c, err := Compute(&aug2027, site, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		if c.Kind != KindPartial {
			t.Fatalf("site %+v: kind = %s, want partial", site, c.Kind)
		}
		m := *c.Magnitude
		if m < 0 || m > 1 {
			t.Errorf("magnitude %v out of [0, 1]", m)
		}
		if m >= prev {
			t.Errorf("magnitude %v did not decrease (prev %v) at %+v", m, prev, site)
		}
		prev = m
	}
}

func TestClassificationStableUnderElevation(t *testing.T) {
	// P9: classification at the greatest-eclipse point is unchanged
	// between sea level and 3 km.
	site := Site{LatDeg: 25.5, LonDeg: 33.2}
	high := site
	high.ElevM = 3000

	c0, err := Compute(&aug2027, site, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c3k, err := Compute(&aug2027, high, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if c0.Kind != c3k.Kind {
		t.Errorf("classification changed with elevation: %s vs %s", c0.Kind, c3k.Kind)
	}
	if c0.Kind != KindTotal {
		t.Errorf("greatest-eclipse point should be total, got %s", c0.Kind)
	}
}

func TestComputeDegenerateAllZero(t *testing.T) {
	rec := catalog.EclipseRecord{
		ID:        "degenerate",
		DateYMD:   "2027-08-02",
		T0TTHours: 10.0,
	}

	c, err := Compute(&rec, gibraltar, DefaultConfig())
	if err != nil {
		t.Fatalf("degenerate record must not error: %v", err)
	}
	if c.Visible || c.Kind != KindNone {
		t.Errorf("visible=%v kind=%s, want invisible none", c.Visible, c.Kind)
	}
	if c.MaxUTC == "" {
		t.Error("max must still be defined")
	}
	if c.C1UTC != "" || c.C4UTC != "" || c.Magnitude != nil || c.DurationSeconds != nil {
		t.Error("no contacts, magnitude or duration expected")
	}
}

func TestComputeNaNPolynomials(t *testing.T) {
	rec := aug2027
	rec.X = []float64{math.NaN()}

	c, err := Compute(&rec, gibraltar, DefaultConfig())
	if err != nil {
		t.Fatalf("NaN polynomials must not error: %v", err)
	}
	if c.Visible || c.Kind != KindNone {
		t.Errorf("visible=%v kind=%s, want invisible none", c.Visible, c.Kind)
	}
}

func TestComputeMalformedDate(t *testing.T) {
	rec := aug2027
	rec.DateYMD = "08/02/2027"

	_, err := Compute(&rec, gibraltar, DefaultConfig())
	if !errors.Is(err, timescale.ErrMalformedDate) {
		t.Errorf("err = %v, want ErrMalformedDate", err)
	}
}

func TestComputeDeterministic(t *testing.T) {
	// Two runs over the same inputs are byte-identical.
	a, err := Compute(&aug2027, gibraltar, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(&aug2027, gibraltar, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("results differ between runs:\n%+v\n%+v", a, b)
	}
}

func TestComputeDebugPayload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debug = true

	c, err := Compute(&aug2027, gibraltar, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c.Debug == nil {
		t.Fatal("debug payload missing")
	}
	if len(c.Debug.PenumbralRoots) != 2 || len(c.Debug.UmbralRoots) != 2 {
		t.Errorf("root counts pen=%d umb=%d, want 2/2",
			len(c.Debug.PenumbralRoots), len(c.Debug.UmbralRoots))
	}
}

func TestComputeBatch(t *testing.T) {
	records := []catalog.EclipseRecord{aug2027, annular2028, partial2025}

	results := ComputeBatch(context.Background(), Request{
		Site:    gibraltar,
		Records: records,
		Config:  DefaultConfig(),
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Kind != KindTotal {
		t.Errorf("record 0 kind = %s, want total", results[0].Kind)
	}
	if results[1].Kind != KindAnnular {
		t.Errorf("record 1 kind = %s, want annular", results[1].Kind)
	}
	if results[2].Kind != KindPartial {
		t.Errorf("record 2 kind = %s, want partial", results[2].Kind)
	}
	for i, r := range results {
		if r.Error != "" {
			t.Errorf("record %d unexpected error: %s", i, r.Error)
		}
	}
}

func TestComputeBatchIsolatesBadRecord(t *testing.T) {
	bad := aug2027
	bad.ID = "bad"
	bad.DateYMD = "not-a-date"

	results := ComputeBatch(context.Background(), Request{
		Site:    gibraltar,
		Records: []catalog.EclipseRecord{aug2027, bad},
		Config:  DefaultConfig(),
	})

	if results[0].Error != "" {
		t.Errorf("good record errored: %s", results[0].Error)
	}
	if results[1].Error == "" {
		t.Error("malformed record should carry an error")
	}
}

func TestComputeBatchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := ComputeBatch(ctx, Request{
		Site:    gibraltar,
		Records: []catalog.EclipseRecord{aug2027},
		Config:  DefaultConfig(),
	})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func BenchmarkComputeGibraltar(b *testing.B) {
	cfg := DefaultConfig()
	for i := 0; i < b.N; i++ {
		if _, err := Compute(&aug2027, gibraltar, cfg); err != nil {
			b.Fatal(err)
		}
	}
}
