package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"
)

// Parse reads a JSON array of eclipse records from r. Records that
// violate the ingestion contract (missing id or date, non-finite
// numeric fields, t0 before midnight) are skipped with a warning log;
// they must never reach the solver.
func Parse(r io.Reader, logger *slog.Logger) ([]EclipseRecord, error) {
	var raw []EclipseRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding catalog JSON: %w", err)
	}

	return validRecords(raw, logger), nil
}

// validRecords filters a decoded record set through the ingestion
// contract, warning on each reject. Shared by Parse and snapshot
// restore so both paths degrade identically.
func validRecords(raw []EclipseRecord, logger *slog.Logger) []EclipseRecord {
	records := make([]EclipseRecord, 0, len(raw))
	for i, rec := range raw {
		if err := validate(&rec); err != nil {
			logger.Warn("skipping malformed catalog record", "index", i, "id", rec.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// validate enforces the record ingestion contract.
func validate(rec *EclipseRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("empty id")
	}
	if _, err := time.Parse("2006-01-02", rec.DateYMD); err != nil {
		return fmt.Errorf("bad dateYmd %q", rec.DateYMD)
	}
	if rec.T0TTHours < 0 {
		return fmt.Errorf("negative t0TtHours %v", rec.T0TTHours)
	}

	scalars := []float64{rec.T0TTHours, rec.DeltaTSeconds, rec.TanF1, rec.TanF2}
	for _, v := range scalars {
		if !finite(v) {
			return fmt.Errorf("non-finite scalar field")
		}
	}

	coeffs := map[string][]float64{
		"x": rec.X, "y": rec.Y, "d": rec.D, "mu": rec.Mu, "l1": rec.L1, "l2": rec.L2,
	}
	for name, c := range coeffs {
		for _, v := range c {
			if !finite(v) {
				return fmt.Errorf("non-finite %s coefficient", name)
			}
		}
	}

	for _, p := range []*float64{rec.GreatestEclipseLatDeg, rec.GreatestEclipseLonDeg} {
		if p != nil && !finite(*p) {
			return fmt.Errorf("non-finite greatest-eclipse coordinate")
		}
	}

	return nil
}

// NewDataset wraps parsed records with source metadata and their date
// range.
func NewDataset(source string, fetchedAt time.Time, records []EclipseRecord) *Dataset {
	ds := &Dataset{
		Source:    source,
		FetchedAt: fetchedAt,
		Eclipses:  records,
	}
	for _, rec := range records {
		if ds.DateRange.Min == "" || rec.DateYMD < ds.DateRange.Min {
			ds.DateRange.Min = rec.DateYMD
		}
		if rec.DateYMD > ds.DateRange.Max {
			ds.DateRange.Max = rec.DateYMD
		}
	}
	return ds
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
