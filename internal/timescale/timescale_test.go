package timescale

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseTTBasic(t *testing.T) {
	tt, err := ParseTT("2027-08-02", 10.0)
	if err != nil {
		t.Fatalf("ParseTT: %v", err)
	}
	want := time.Date(2027, 8, 2, 10, 0, 0, 0, time.UTC)
	if !tt.Equal(want) {
		t.Errorf("TT instant = %v, want %v", tt, want)
	}
}

func TestParseTTDayBoundaryCarry(t *testing.T) {
	// 23h 59m 59.9996s rounds to the next midnight and carries the year.
	hours := 23 + 59.0/60 + 59.9996/3600
	tt, err := ParseTT("2031-12-31", hours)
	if err != nil {
		t.Fatalf("ParseTT: %v", err)
	}
	if got := FormatISO(tt); got != "2032-01-01T00:00:00.000Z" {
		t.Errorf("TT = %s, want 2032-01-01T00:00:00.000Z", got)
	}

	// With ΔT = −2.2 s, UTC runs ahead of TT.
	utc := ToUTC(tt, -2.2)
	if got := FormatISO(utc); got != "2032-01-01T00:00:02.200Z" {
		t.Errorf("UTC = %s, want 2032-01-01T00:00:02.200Z", got)
	}
}

func TestParseTTHoursOver24(t *testing.T) {
	tt, err := ParseTT("2027-08-02", 25.5)
	if err != nil {
		t.Fatalf("ParseTT: %v", err)
	}
	if got := FormatISO(tt); got != "2027-08-03T01:30:00.000Z" {
		t.Errorf("TT = %s, want 2027-08-03T01:30:00.000Z", got)
	}
}

func TestParseTTMalformed(t *testing.T) {
	for _, bad := range []string{"", "2027-8-2", "02-08-2027", "2027/08/02", "not-a-date", "2027-13-01"} {
		if _, err := ParseTT(bad, 0); !errors.Is(err, ErrMalformedDate) {
			t.Errorf("ParseTT(%q): err = %v, want ErrMalformedDate", bad, err)
		}
	}
}

func TestAtOffset(t *testing.T) {
	tt, _ := ParseTT("2027-08-02", 10.0)

	if got := FormatISO(AtOffset(tt, -2.5)); got != "2027-08-02T07:30:00.000Z" {
		t.Errorf("offset -2.5h = %s", got)
	}
	if got := FormatISO(AtOffset(tt, 1.0/600)); got != "2027-08-02T10:00:06.000Z" {
		t.Errorf("offset +6s = %s", got)
	}
}

func TestToUTCPositiveDeltaT(t *testing.T) {
	tt, _ := ParseTT("2027-08-02", 10.0)
	if got := FormatISO(ToUTC(tt, 71.0)); got != "2027-08-02T09:58:49.000Z" {
		t.Errorf("UTC = %s, want 2027-08-02T09:58:49.000Z", got)
	}
}

func TestMillisecondRoundingHalfAwayFromZero(t *testing.T) {
	base, _ := ParseTT("2027-08-02", 0)

	cases := []struct {
		ms   float64
		want time.Duration
	}{
		{0.5, time.Millisecond},
		{-0.5, -time.Millisecond},
		{0.49, 0},
		{-0.49, 0},
		{1.5, 2 * time.Millisecond},
		{-1.5, -2 * time.Millisecond},
	}
	for _, c := range cases {
		if got := addMillis(base, c.ms).Sub(base); got != c.want {
			t.Errorf("addMillis(%v ms) shifted %v, want %v", c.ms, got, c.want)
		}
	}
}

func TestFormatISOAlwaysThreeDigits(t *testing.T) {
	tt := time.Date(2027, 8, 2, 7, 41, 16, 356e6, time.UTC)
	if got := FormatISO(tt); got != "2027-08-02T07:41:16.356Z" {
		t.Errorf("FormatISO = %s", got)
	}
	whole := time.Date(2027, 8, 2, 7, 0, 0, 0, time.UTC)
	if got := FormatISO(whole); got != "2027-08-02T07:00:00.000Z" {
		t.Errorf("FormatISO on whole second = %s, want trailing .000", got)
	}
}

func TestJulianDateJ2000(t *testing.T) {
	// 2000-01-01 12:00 is JD 2451545.0 by definition.
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := JulianDate(j2000); math.Abs(got-2451545.0) > 1e-6 {
		t.Errorf("JulianDate(J2000) = %v, want 2451545.0", got)
	}
}
