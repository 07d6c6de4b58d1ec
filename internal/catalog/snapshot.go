package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotEnvelope is the on-disk catalog snapshot: the validated
// dataset re-serialized together with its provenance, not the raw
// upstream bytes. Restoring an envelope recovers source and fetch time
// without trusting filenames.
type snapshotEnvelope struct {
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Eclipses  []EclipseRecord `json:"eclipses"`
}

// prevSuffix names the one-deep rotation slot a snapshot write leaves
// behind; Restore falls back to it when the primary file is corrupt.
const prevSuffix = ".prev"

// SaveSnapshot persists the current dataset to the store's snapshot
// path. The write is atomic (temp file + rename) and rotates the
// previous snapshot one slot deep. A store without a snapshot path or
// without a dataset is a no-op.
func (s *Store) SaveSnapshot() error {
	ds := s.Get()
	if ds == nil || s.snapshotPath == "" {
		return nil
	}

	env := snapshotEnvelope{
		Source:    ds.Source,
		FetchedAt: ds.FetchedAt,
		Eclipses:  ds.Eclipses,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding catalog snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing catalog snapshot: %w", err)
	}

	// Rotate the live snapshot before the swap; a missing previous
	// file is the common first-run case.
	if _, err := os.Stat(s.snapshotPath); err == nil {
		if err := os.Rename(s.snapshotPath, s.snapshotPath+prevSuffix); err != nil {
			return fmt.Errorf("rotating catalog snapshot: %w", err)
		}
	}

	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return fmt.Errorf("installing catalog snapshot: %w", err)
	}
	return nil
}

// Restore loads the newest readable snapshot into the store, trying
// the primary file and then the rotation slot. Records are re-run
// through ingestion validation, so a hand-edited snapshot degrades the
// same way a bad upstream catalog does. Returns true when a dataset
// was restored; (false, nil) when no snapshot exists.
func (s *Store) Restore() (bool, error) {
	if s.snapshotPath == "" {
		return false, nil
	}

	var lastErr error
	for _, path := range []string{s.snapshotPath, s.snapshotPath + prevSuffix} {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				lastErr = err
			}
			continue
		}

		var env snapshotEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			lastErr = fmt.Errorf("decoding snapshot %s: %w", path, err)
			s.logger.Warn("skipping unreadable catalog snapshot", "path", path, "error", err)
			continue
		}

		records := validRecords(env.Eclipses, s.logger)
		if len(records) == 0 {
			lastErr = fmt.Errorf("snapshot %s contains no valid records", path)
			continue
		}

		s.Set(NewDataset(env.Source, env.FetchedAt, records))
		s.logger.Info("restored catalog snapshot",
			"path", path,
			"records", len(records),
			"fetched_at", env.FetchedAt.UTC().Format(time.RFC3339),
		)
		return true, nil
	}

	return false, lastErr
}
