package health

import "net/http"

// Healthz returns 200 "ok\n" unconditionally: the process is up.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz returns a readiness probe gated on catalog availability.
// The solver itself is stateless, but every catalog-backed route
// answers 503 until a dataset is loaded; readiness reports the same
// condition so a rollout holds traffic until the snapshot restore or
// seed load has finished.
func Readyz(catalogLoaded func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if !catalogLoaded() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("no catalog\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}
