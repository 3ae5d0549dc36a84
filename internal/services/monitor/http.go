package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/balmee/watering-core/internal/services/actuator"
)

// NewMux exposes the session over HTTP: health, the snapshot read model for
// presentation, the pump command endpoint and Prometheus metrics.
func NewMux(s *Session) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", newHealthHandler(s))
	mux.Handle("/readyz", newReadyHandler(s))
	mux.HandleFunc("/telemetry/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})
	mux.HandleFunc("/pump/run", newPumpHandler(s))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func newHealthHandler(s *Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status          string  `json:"status"`
			MQTTConnected   bool    `json:"mqtt_connected"`
			ConnectionState string  `json:"connection_state"`
			LastWriteErrorS float64 `json:"last_write_error_age_sec,omitempty"`
		}
		st := status{
			MQTTConnected:   s.Connected(),
			ConnectionState: s.Snapshot().State.String(),
		}
		recOK := true
		if s.Recorder() != nil {
			st.LastWriteErrorS = s.Recorder().LastErrorAge().Seconds()
			recOK = s.Recorder().LastErrorAge() > 30*time.Second
		}
		switch {
		case st.MQTTConnected && recOK:
			st.Status = "ok"
		case st.MQTTConnected || recOK:
			st.Status = "degraded"
		default:
			st.Status = "down"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
}

func newReadyHandler(s *Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ready := s.Connected()
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
	})
}

// newPumpHandler is the presentation layer's only write path. The command is
// fire-and-forget, so success is 202, not 200.
func newPumpHandler(s *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		seconds, err := strconv.Atoi(r.URL.Query().Get("seconds"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "seconds must be an integer")
			return
		}
		switch err := s.Commander().RunFor(seconds); {
		case errors.Is(err, actuator.ErrBadDuration):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, actuator.ErrRejected):
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		case err != nil:
			writeJSONError(w, http.StatusBadGateway, err.Error())
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "accepted", "seconds": seconds})
		}
	}
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
