// Package stream implements Server-Sent Events (SSE) streaming of
// eclipse shadow frames. Clients connect via GET /api/v1/stream/shadow
// and receive the shadow-axis ground point and umbral outline frame by
// frame across the eclipse window, for animated map playback.
//
// SSE message format:
//
//	data: {"type":"shadow_frame","t":"2027-08-02T08:46:49.000Z","axis_lat":...,"umbra":[...]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","eclipse_id":"2027-08-02","frames":61,...}\n\n
//
// A final {"type":"complete"} message ends the stream. Keep-alive
// comments (:\n\n) are sent every KeepaliveInterval while paced frames
// are pending.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/metrics"
	"github.com/umbra/umbrago/internal/overlay"
	"github.com/umbra/umbrago/internal/timescale"
)

// Config holds streaming configuration loaded from environment
// variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrentTotal int           // Max concurrent streams process-wide (default: 256).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Trust X-Forwarded-For / X-Real-IP.
}

// Handler manages SSE streaming connections.
type Handler struct {
	store      *catalog.Store
	overlayCfg overlay.Config
	config     Config
	limiter    *streamLimiter
	logger     *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(store *catalog.Store, overlayCfg overlay.Config, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		overlayCfg: overlayCfg,
		config:     config,
		limiter:    newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrentTotal),
		logger:     logger,
	}
}

// HandleShadowFrames serves the SSE shadow-frame stream.
// GET /api/v1/stream/shadow?eclipse=2027-08-02&interval_ms=200&step_min=6
func (h *Handler) HandleShadowFrames(w http.ResponseWriter, r *http.Request) {
	ds := h.store.Get()
	if ds == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no eclipse catalog loaded")
		return
	}

	id := r.URL.Query().Get("eclipse")
	rec := ds.Find(id)
	if rec == nil {
		writeJSONError(w, http.StatusNotFound, "unknown eclipse id")
		return
	}

	intervalMs := 200
	if v := r.URL.Query().Get("interval_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 20 || n > 5000 {
			writeJSONError(w, http.StatusBadRequest, "invalid interval_ms parameter, must be 20-5000")
			return
		}
		intervalMs = n
	}

	stepMin := 6
	if v := r.URL.Query().Get("step_min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeJSONError(w, http.StatusBadRequest, "invalid step_min parameter, must be 1-60")
			return
		}
		stepMin = n
	}

	tt0, err := timescale.ParseTT(rec.DateYMD, rec.T0TTHours)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// Rate limiting: per-IP and global concurrent stream caps.
	ip := clientIP(r, h.config.TrustProxy)
	if reason := h.limiter.acquire(ip); reason != "" {
		metrics.IncStreamErrors(reason)
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"reason", reason,
			"ip_count", h.limiter.count(ip),
			"active_total", h.limiter.active(),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"eclipse_id", rec.ID,
		"interval_ms", intervalMs,
		"step_min", stepMin,
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Precompute the frame schedule.
	stepHours := float64(stepMin) / 60
	window := h.overlayCfg.WindowHours
	var times []float64
	for i := 0; ; i++ {
		t := -window + float64(i)*stepHours
		if t > window {
			break
		}
		times = append(times, t)
	}

	meta := metadataMessage{
		Type:        "metadata",
		EclipseID:   rec.ID,
		Date:        rec.DateYMD,
		Kind:        rec.Kind,
		Frames:      len(times),
		StepMinutes: stepMin,
	}
	if err := c.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.keepaliveInterval())
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	next := 0

	for next < len(times) {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			t := times[next]
			next++

			frame, ok := overlay.FrameAt(rec, t, h.overlayCfg)
			if !ok {
				// Axis off Earth; nothing to draw this frame.
				continue
			}

			utc := timescale.ToUTC(timescale.AtOffset(tt0, t), rec.DeltaTSeconds)
			msg := frameMessage{
				Type:  "shadow_frame",
				T:     timescale.FormatISO(utc),
				Frame: frame,
			}
			if err := c.sendJSON(msg); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.keepaliveInterval())

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}

	if err := c.sendJSON(completeMessage{Type: "complete", Frames: len(times)}); err != nil {
		metrics.IncStreamErrors("send_error")
	}
}

func (h *Handler) keepaliveInterval() time.Duration {
	if h.config.KeepaliveInterval <= 0 {
		return 30 * time.Second
	}
	return h.config.KeepaliveInterval
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type        string `json:"type"`
	EclipseID   string `json:"eclipse_id"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	Frames      int    `json:"frames"`
	StepMinutes int    `json:"step_minutes"`
}

type frameMessage struct {
	Type string `json:"type"`
	T    string `json:"t"`
	overlay.Frame
}

type completeMessage struct {
	Type   string `json:"type"`
	Frames int    `json:"frames"`
}
