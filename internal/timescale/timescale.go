// Package timescale builds Terrestrial Time instants from catalog
// records and converts them to UTC for output.
//
// TT and UTC differ by ΔT, which is supplied per record; no ΔT model
// is computed here. All instants carry millisecond precision:
// fractional milliseconds are rounded half away from zero when an
// instant is constructed.
package timescale

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// ErrMalformedDate reports a record date that cannot be parsed as
// YYYY-MM-DD. It is the only structural failure in the core: without a
// valid date no output time can be formed.
var ErrMalformedDate = errors.New("malformed date")

const (
	millisPerHour   = 3_600_000.0
	millisPerSecond = 1000.0
)

// isoMillisLayout is the exact output format required downstream:
// three fractional digits, literal Z.
const isoMillisLayout = "2006-01-02T15:04:05.000Z"

// ParseTT forms the TT instant for a proleptic-Gregorian civil date
// (YYYY-MM-DD) plus decimal hours. Hours ≥ 24 carry into following
// days. The result is quantized to the millisecond.
func ParseTT(dateYMD string, hours float64) (time.Time, error) {
	base, err := time.Parse("2006-01-02", dateYMD)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, dateYMD)
	}
	return addMillis(base, hours*millisPerHour), nil
}

// AtOffset shifts a TT instant by tHours decimal hours, quantized to
// the millisecond.
func AtOffset(tt time.Time, tHours float64) time.Time {
	return addMillis(tt, tHours*millisPerHour)
}

// ToUTC converts a TT instant to UTC by subtracting ΔT = TT − UTC.
// ΔT may be negative for historical records.
func ToUTC(tt time.Time, deltaTSeconds float64) time.Time {
	return addMillis(tt, -deltaTSeconds*millisPerSecond)
}

// FormatISO renders an instant as YYYY-MM-DDTHH:MM:SS.sssZ.
func FormatISO(t time.Time) string {
	return t.UTC().Round(time.Millisecond).Format(isoMillisLayout)
}

// JulianDate returns the Julian Date of an instant on its own time
// scale (the JD of a TT instant is a TT Julian Date).
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// addMillis adds a (possibly fractional, possibly negative) number of
// milliseconds, rounding half away from zero to whole milliseconds.
func addMillis(t time.Time, ms float64) time.Time {
	rounded := math.Floor(math.Abs(ms) + 0.5)
	if math.Signbit(ms) {
		rounded = -rounded
	}
	return t.Add(time.Duration(rounded) * time.Millisecond)
}
