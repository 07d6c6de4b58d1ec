package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/circumstances"
	"github.com/umbra/umbrago/internal/metrics"
	"github.com/umbra/umbrago/internal/timescale"
)

// eclipseSummary is the catalog-listing shape.
type eclipseSummary struct {
	ID      string `json:"id"`
	DateYMD string `json:"date"`
	Kind    string `json:"kind"`

	GreatestEclipseLatDeg *float64 `json:"greatest_eclipse_lat,omitempty"`
	GreatestEclipseLonDeg *float64 `json:"greatest_eclipse_lon,omitempty"`
	GreatestEclipseUTC    string   `json:"greatest_eclipse_utc,omitempty"`
}

// eclipseDetail adds the time-scale fields a client needs to place the
// record.
type eclipseDetail struct {
	eclipseSummary
	T0TTHours     float64 `json:"t0_tt_hours"`
	DeltaTSeconds float64 `json:"delta_t_seconds"`
	T0UTC         string  `json:"t0_utc"`
	T0JulianDate  float64 `json:"t0_julian_date_tt"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// dataset returns the current catalog or replies 503.
func (s *Server) dataset(w http.ResponseWriter) *catalog.Dataset {
	ds := s.store.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no eclipse catalog loaded")
	}
	return ds
}

func summarize(rec *catalog.EclipseRecord) eclipseSummary {
	return eclipseSummary{
		ID:                    rec.ID,
		DateYMD:               rec.DateYMD,
		Kind:                  rec.Kind,
		GreatestEclipseLatDeg: rec.GreatestEclipseLatDeg,
		GreatestEclipseLonDeg: rec.GreatestEclipseLonDeg,
		GreatestEclipseUTC:    rec.GreatestEclipseUTC,
	}
}

// validDateBound checks an optional from/to query value.
func validDateBound(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func (s *Server) handleListEclipses(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if !validDateBound(from) || !validDateBound(to) {
		writeError(w, http.StatusBadRequest, "from/to must be YYYY-MM-DD dates")
		return
	}

	records := s.store.InRange(from, to)
	out := make([]eclipseSummary, len(records))
	for i := range records {
		out[i] = summarize(&records[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEclipse(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	rec := ds.Find(r.PathValue("id"))
	if rec == nil {
		writeError(w, http.StatusNotFound, "unknown eclipse id")
		return
	}

	detail := eclipseDetail{
		eclipseSummary: summarize(rec),
		T0TTHours:      rec.T0TTHours,
		DeltaTSeconds:  rec.DeltaTSeconds,
	}
	if tt0, err := timescale.ParseTT(rec.DateYMD, rec.T0TTHours); err == nil {
		detail.T0UTC = timescale.FormatISO(timescale.ToUTC(tt0, rec.DeltaTSeconds))
		detail.T0JulianDate = timescale.JulianDate(tt0)
	}
	writeJSON(w, http.StatusOK, detail)
}

// parseSite reads lat/lon/elev query parameters. lat and lon are
// required; elev defaults to 0.
func parseSite(r *http.Request) (circumstances.Site, error) {
	var site circumstances.Site

	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		return site, errors.New("lat and lon query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return site, errors.New("lat must be a number in [-90, 90]")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return site, errors.New("lon must be a number")
	}

	site.LatDeg = lat
	site.LonDeg = lon

	if elevStr := r.URL.Query().Get("elev"); elevStr != "" {
		elev, err := strconv.ParseFloat(elevStr, 64)
		if err != nil {
			return site, errors.New("elev must be a number (meters)")
		}
		site.ElevM = elev
	}

	return site, nil
}

func (s *Server) handleCircumstances(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	rec := ds.Find(r.PathValue("id"))
	if rec == nil {
		writeError(w, http.StatusNotFound, "unknown eclipse id")
		return
	}

	site, err := parseSite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.solverCfg
	if r.URL.Query().Get("debug") == "true" {
		cfg.Debug = true
	}

	start := time.Now()
	c, err := circumstances.Compute(rec, site, cfg)
	if err != nil {
		// Only malformed record dates reach here; the record is
		// structurally unusable.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	metrics.RecordSolve(string(c.Kind), time.Since(start))

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleBatchCircumstances(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	site, err := parseSite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	results := circumstances.ComputeBatch(r.Context(), circumstances.Request{
		Site:    site,
		Records: ds.Eclipses,
		Config:  s.solverCfg,
	})
	for _, res := range results {
		if res.Error == "" {
			metrics.RecordSolve(string(res.Kind), 0)
		}
	}

	s.logger.Debug("batch solve complete",
		"records", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleOverlays(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	id := r.PathValue("id")
	if ds.Find(id) == nil {
		writeError(w, http.StatusNotFound, "unknown eclipse id")
		return
	}

	ov, ok := s.overlays.Get(id)
	if !ok {
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusServiceUnavailable, "overlays not built yet")
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleCatalogMetadata(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":      ds.Source,
		"fetched_at":  ds.FetchedAt.UTC().Format(time.RFC3339),
		"age_seconds": time.Since(ds.FetchedAt).Seconds(),
		"records":     len(ds.Eclipses),
		"date_range": map[string]string{
			"min": ds.DateRange.Min,
			"max": ds.DateRange.Max,
		},
	})
}

func (s *Server) handleCatalogFetch(w http.ResponseWriter, r *http.Request) {
	if !s.catalogCfg.EnableFetch {
		writeError(w, http.StatusForbidden, "catalog fetch is disabled")
		return
	}

	count, err := s.store.Refresh(r.Context(), s.catalogCfg.SourceURL)
	if err != nil {
		s.logger.Error("catalog refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	metrics.SetCatalogRecords(count)

	ds := s.store.Get()
	s.logger.Info("catalog refreshed", "records", count, "source", ds.Source)
	writeJSON(w, http.StatusOK, map[string]any{
		"records":    count,
		"fetched_at": ds.FetchedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.overlays.Stats())
}
