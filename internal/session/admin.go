package session

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/f1-telemetry/internal/httputil"
	"github.com/banshee-data/f1-telemetry/internal/monitoring"
)

// Status is the JSON view of a session.
type Status struct {
	State string              `json:"state"`
	Addr  string              `json:"addr,omitempty"`
	Error string              `json:"error,omitempty"`
	Stats monitoring.Snapshot `json:"stats"`
}

// Status returns a point-in-time view of the session.
func (s *Session) Status() Status {
	st := Status{
		State: s.State().String(),
		Stats: s.Stats(),
	}
	if addr := s.Addr(); addr != nil {
		st.Addr = addr.String()
	}
	if err := s.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// AttachAdminRoutes attaches debugging endpoints to mux under /debug/.
func (s *Session) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("telemetry-stats", "telemetry session state and counters", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s.Status()); err != nil {
			httputil.InternalServerError(w, "Failed to encode status")
		}
	}))

	// Server-Sent Events stream of decoded records for the current connection.
	debug.HandleSilent("telemetry-tail", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "Streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.TelemetryStream()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case rec, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(rec)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
}
