package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxCatalogBytes bounds an upstream catalog response. The full
// five-millennium eclipse canon serializes to well under this.
const maxCatalogBytes = 16 << 20

var refreshClient = &http.Client{Timeout: 30 * time.Second}

// Refresh replaces the store's catalog from an upstream JSON source:
// fetch, parse, validate, swap, snapshot — one serialized operation.
// The current catalog keeps serving until the new one is fully in
// place; a failed refresh leaves it untouched. Returns the number of
// records accepted.
func (s *Store) Refresh(ctx context.Context, sourceURL string) (int, error) {
	if sourceURL == "" {
		return 0, errors.New("no catalog source URL configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := refreshClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, sourceURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes+1))
	if err != nil {
		return 0, fmt.Errorf("reading response body: %w", err)
	}
	if len(data) > maxCatalogBytes {
		return 0, fmt.Errorf("catalog response exceeds %d bytes", maxCatalogBytes)
	}

	records, err := Parse(bytes.NewReader(data), s.logger)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, errors.New("fetched catalog contains no valid records")
	}

	s.dataset.Store(NewDataset(sourceURL, time.Now(), records))

	if err := s.SaveSnapshot(); err != nil {
		s.logger.Warn("catalog snapshot write failed", "error", err)
	}

	return len(records), nil
}
