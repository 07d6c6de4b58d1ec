package circumstances

import (
	"context"
	"runtime"
	"sync"

	"github.com/umbra/umbrago/internal/catalog"
)

// Result pairs one record's circumstances with a per-record error
// string, so a single malformed record cannot fail a whole batch.
type Result struct {
	Circumstances
	Error string `json:"error,omitempty"`
}

// Request holds the parameters for a batch solve: one site against
// many records.
type Request struct {
	Site    Site
	Records []catalog.EclipseRecord
	Config  Config
}

// ComputeBatch solves every record in the request for the given site.
// Each record is processed in its own goroutine, bounded by a
// semaphore. Results are returned in record order.
func ComputeBatch(ctx context.Context, req Request) []Result {
	results := make([]Result, len(req.Records))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i := range req.Records {
		wg.Add(1)
		go func(idx int, rec *catalog.EclipseRecord) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = Result{
					Circumstances: Circumstances{EclipseID: rec.ID, Kind: KindNone},
					Error:         "cancelled",
				}
				return
			}

			c, err := Compute(rec, req.Site, req.Config)
			if err != nil {
				results[idx] = Result{
					Circumstances: Circumstances{EclipseID: rec.ID, Kind: KindNone},
					Error:         err.Error(),
				}
				return
			}
			results[idx] = Result{Circumstances: c}
		}(i, &req.Records[i])
	}

	wg.Wait()
	return results
}
