package main

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/circumstances"
	"github.com/umbra/umbrago/internal/timescale"
)

func main() {
	var (
		catalogPath = flag.String("catalog", "internal/catalog/testdata/eclipses.json", "path to catalog JSON")
		lat         = flag.Float64("lat", 36.1408, "observer latitude (degrees, north positive)")
		lon         = flag.Float64("lon", -5.3536, "observer longitude (degrees, east positive)")
		elev        = flag.Float64("elev", 0, "observer elevation (meters)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		fmt.Println("ERROR reading catalog:", err)
		os.Exit(1)
	}

	records, err := catalog.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Println("ERROR parsing catalog:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d eclipse records\n", len(records))

	site := circumstances.Site{LatDeg: *lat, LonDeg: *lon, ElevM: *elev}
	fmt.Printf("Observer: lat=%.4f lon=%.4f elev=%.0fm\n\n", *lat, *lon, *elev)

	cfg := circumstances.DefaultConfig()
	visible := 0
	for i := range records {
		rec := &records[i]

		tt0, err := timescale.ParseTT(rec.DateYMD, rec.T0TTHours)
		if err != nil {
			fmt.Printf("  %s: ERROR %v\n", rec.ID, err)
			continue
		}

		c, err := circumstances.Compute(rec, site, cfg)
		if err != nil {
			fmt.Printf("  %s: ERROR %v\n", rec.ID, err)
			continue
		}

		fmt.Printf("  %s (%s, JD %.5f TT)\n", rec.ID, rec.Kind, timescale.JulianDate(tt0))
		fmt.Printf("    visible=%v kind=%s max=%s\n", c.Visible, c.Kind, c.MaxUTC)
		if c.Visible {
			visible++
			fmt.Printf("    C1=%s C4=%s\n", c.C1UTC, c.C4UTC)
			if c.C2UTC != "" {
				fmt.Printf("    C2=%s C3=%s\n", c.C2UTC, c.C3UTC)
			}
			if c.Magnitude != nil {
				fmt.Printf("    magnitude=%.6f\n", *c.Magnitude)
			}
			if c.DurationSeconds != nil {
				fmt.Printf("    central duration=%.3fs\n", *c.DurationSeconds)
			}
		}
	}

	fmt.Printf("\nVisible from this site: %d of %d\n", visible, len(records))
}
