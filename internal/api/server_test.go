package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/f1-telemetry/internal/monitoring"
	"github.com/banshee-data/f1-telemetry/internal/network"
	"github.com/banshee-data/f1-telemetry/internal/packet"
	"github.com/banshee-data/f1-telemetry/internal/packet/packettest"
	"github.com/banshee-data/f1-telemetry/internal/session"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type fakeSession struct {
	mu           sync.Mutex
	connectErr   error
	ports        []int
	disconnects  int
	state        string
	unsubscribed []string
}

func (f *fakeSession) Connect(port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = append(f.ports, port)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.state = "connected"
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.state = "disconnected"
	return nil
}

func (f *fakeSession) TelemetryStream() (string, <-chan packet.CarTelemetryData) {
	ch := make(chan packet.CarTelemetryData)
	close(ch)
	return "", ch
}

func (f *fakeSession) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, id)
}

func (f *fakeSession) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state
	if state == "" {
		state = "disconnected"
	}
	return session.Status{State: state}
}

func decodeStatus(t *testing.T, body io.Reader) session.Status {
	t.Helper()
	var st session.Status
	require.NoError(t, json.NewDecoder(body).Decode(&st))
	return st
}

func TestShowSession(t *testing.T) {
	srv := NewServer(&fakeSession{}, 20777)
	mux := srv.ServeMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "disconnected", decodeStatus(t, w.Body).State)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/session", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestConnectHandler(t *testing.T) {
	cases := []struct {
		name       string
		method     string
		target     string
		connectErr error
		wantStatus int
		wantPorts  []int
	}{
		{"default port", http.MethodPost, "/api/session/connect", nil, http.StatusOK, []int{20777}},
		{"explicit port", http.MethodPost, "/api/session/connect?port=20778", nil, http.StatusOK, []int{20778}},
		{"bad port", http.MethodPost, "/api/session/connect?port=udp", nil, http.StatusBadRequest, nil},
		{"port out of range", http.MethodPost, "/api/session/connect?port=70000", nil, http.StatusBadRequest, nil},
		{"wrong method", http.MethodGet, "/api/session/connect", nil, http.StatusMethodNotAllowed, nil},
		{
			"bind failure", http.MethodPost, "/api/session/connect",
			&network.BindError{Address: ":20777", Err: errors.New("address already in use")},
			http.StatusServiceUnavailable, []int{20777},
		},
		{"other failure", http.MethodPost, "/api/session/connect", errors.New("boom"), http.StatusInternalServerError, []int{20777}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSession{connectErr: tc.connectErr}
			w := httptest.NewRecorder()
			NewServer(fake, 20777).ServeMux().ServeHTTP(w, httptest.NewRequest(tc.method, tc.target, nil))

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantPorts, fake.ports)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, "connected", decodeStatus(t, w.Body).State)
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestConnectHandler_FormPort(t *testing.T) {
	fake := &fakeSession{}
	req := httptest.NewRequest(http.MethodPost, "/api/session/connect", strings.NewReader("port=30000"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	NewServer(fake, 20777).ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{30000}, fake.ports)
}

func TestDisconnectHandler(t *testing.T) {
	fake := &fakeSession{state: "connected"}
	mux := NewServer(fake, 20777).ServeMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session/disconnect", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disconnected", decodeStatus(t, w.Body).State)
	assert.Equal(t, 1, fake.disconnects)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session/disconnect", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w := httptest.NewRecorder()
	LoggingMiddleware(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session?x=1", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(101), "101")
	assert.True(t, strings.HasPrefix(statusCodeColor(200), colorBoldGreen))
	assert.True(t, strings.HasPrefix(statusCodeColor(304), colorYellow))
	assert.True(t, strings.HasPrefix(statusCodeColor(404), colorBoldRed))
	assert.True(t, strings.HasPrefix(statusCodeColor(503), colorBoldRed))
	assert.Equal(t, "42", statusCodeColor(42))
}

func TestTelemetryWebsocket_StreamsRecords(t *testing.T) {
	sock := network.NewMockUDPSocket()
	sess := session.New(session.Config{SocketFactory: network.NewMockUDPSocketFactory(sock)})
	require.NoError(t, sess.Connect(20777))
	defer sess.Disconnect()

	ts := httptest.NewServer(LoggingMiddleware(NewServer(sess, 20777).ServeMux()))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/telemetry/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// The handler subscribes right after the upgrade; keep sending until a
	// record arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		payload := packettest.NewBuilder(3).Player(packet.CarTelemetryData{Speed: 312, Gear: 8, DRS: true}).Bytes()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sock.Deliver(payload)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rec packet.CarTelemetryData
	require.NoError(t, conn.ReadJSON(&rec))
	assert.Equal(t, uint16(312), rec.Speed)
	assert.Equal(t, int8(8), rec.Gear)
	assert.True(t, rec.DRS)
	assert.Nil(t, rec.Corners)
}

func TestTelemetryWebsocket_ClosesOnDisconnect(t *testing.T) {
	sess := session.New(session.Config{SocketFactory: network.NewMockUDPSocketFactory()})
	require.NoError(t, sess.Connect(20777))

	ts := httptest.NewServer(NewServer(sess, 20777).ServeMux())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/telemetry/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Whether the handler subscribed before or after the disconnect, the
	// client sees a normal close.
	require.NoError(t, sess.Disconnect())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestTelemetryWebsocket_RequiresGet(t *testing.T) {
	w := httptest.NewRecorder()
	NewServer(&fakeSession{}, 20777).ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/telemetry/ws", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
