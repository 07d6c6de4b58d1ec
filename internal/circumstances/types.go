package circumstances

// Kind is the per-location eclipse classification. It is recomputed
// for every solve; the record-level kind is never trusted for it.
type Kind string

const (
	KindNone    Kind = "none"
	KindPartial Kind = "partial"
	KindTotal   Kind = "total"
	KindAnnular Kind = "annular"
)

// Site is an observer's geodetic position.
type Site struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	ElevM  float64 `json:"elev_m"`
}

// Circumstances is the solver output for one (record, site) pair.
// Contact fields are ISO-8601 UTC strings with millisecond precision;
// absent contacts are empty strings and omitted from JSON. MaxUTC is
// always present.
type Circumstances struct {
	EclipseID string `json:"eclipse_id"`
	Visible   bool   `json:"visible"`
	Kind      Kind   `json:"kind_at_location"`

	C1UTC  string `json:"c1_utc,omitempty"`
	C2UTC  string `json:"c2_utc,omitempty"`
	MaxUTC string `json:"max_utc"`
	C3UTC  string `json:"c3_utc,omitempty"`
	C4UTC  string `json:"c4_utc,omitempty"`

	Magnitude       *float64 `json:"magnitude,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`

	Debug *Debug `json:"debug,omitempty"`
}

// Debug carries solver internals for diagnostics; populated only when
// Config.Debug is set.
type Debug struct {
	PenumbralRoots []float64 `json:"penumbral_roots_hours"`
	UmbralRoots    []float64 `json:"umbral_roots_hours"`
	PenBrackets    int       `json:"penumbral_brackets"`
	UmbBrackets    int       `json:"umbral_brackets"`
	MaxTHours      float64   `json:"max_t_hours"`
}

// Config holds the solver's tuning constants. The defaults are the
// values the reference snapshots were produced with; changing them
// moves contact times at the millisecond level.
type Config struct {
	// WindowHours is the half-width of the search window around t0.
	WindowHours float64
	// CoarseStepHours is the bracketing step for contact roots.
	CoarseStepHours float64
	// FineStepHours is the scan step for maximum-obscuration search.
	FineStepHours float64
	// TolHours is the bisection tolerance (1e-7 h ≈ 0.36 ms).
	TolHours float64
	// MaxIterations bounds each bisection run.
	MaxIterations int
	// Debug attaches root lists and bracket counts to results.
	Debug bool
}

// DefaultConfig returns the tuned solver configuration.
func DefaultConfig() Config {
	return Config{
		WindowHours:     3,
		CoarseStepHours: 1.0 / 60,  // 60 s
		FineStepHours:   1.0 / 600, // 6 s
		TolHours:        1e-7,
		MaxIterations:   100,
	}
}
