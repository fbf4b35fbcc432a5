package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/f1-telemetry/internal/httputil"
	"github.com/banshee-data/f1-telemetry/internal/packet"
	"github.com/banshee-data/f1-telemetry/internal/session"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Session is the part of *session.Session the HTTP surface drives.
type Session interface {
	Connect(port int) error
	Disconnect() error
	TelemetryStream() (string, <-chan packet.CarTelemetryData)
	Unsubscribe(id string)
	Status() session.Status
}

type Server struct {
	s           Session
	defaultPort int
	upgrader    websocket.Upgrader
}

// NewServer creates the HTTP surface for s. defaultPort is used by connect
// requests that do not name a port.
func NewServer(s Session, defaultPort int) *Server {
	return &Server{
		s:           s,
		defaultPort: defaultPort,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrade pass through the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 100 && statusCode < 200:
		return colorCyan + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/session/connect", s.connectHandler)
	mux.HandleFunc("/api/session/disconnect", s.disconnectHandler)
	mux.HandleFunc("/api/telemetry/ws", s.telemetryWebsocket)
	return mux
}

func (s *Server) writeStatus(w http.ResponseWriter) {
	httputil.WriteJSONOK(w, s.s.Status())
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.writeStatus(w)
}

// connectHandler is the explicit, caller-triggered retry after a bind failure
// or a terminated listener. Connecting an already connected session is a no-op.
func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	port := s.defaultPort
	if p := r.FormValue("port"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 0 || parsed > 65535 {
			httputil.BadRequest(w, "Invalid 'port' parameter")
			return
		}
		port = parsed
	}

	if err := s.s.Connect(port); err != nil {
		httputil.SessionError(w, "Failed to connect", err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.s.Disconnect(); err != nil {
		httputil.SessionError(w, "Failed to disconnect", err)
		return
	}
	s.writeStatus(w)
}

// telemetryWebsocket streams decoded records as JSON text messages until the
// session disconnects or the client goes away.
func (s *Server) telemetryWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("telemetry websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, records := s.s.TelemetryStream()
	defer s.s.Unsubscribe(id)

	// Reads only serve to notice the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session disconnected")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
