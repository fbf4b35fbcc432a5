// Package session composes the UDP listener and the telemetry decoder into a
// connect/disconnect lifecycle with fan-out to any number of subscribers.
package session

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/f1-telemetry/internal/monitoring"
	"github.com/banshee-data/f1-telemetry/internal/network"
	"github.com/banshee-data/f1-telemetry/internal/packet"
)

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// DefaultSubscriberBuffer is the per-subscriber record buffer.
const DefaultSubscriberBuffer = 64

// Config configures a Session.
type Config struct {
	BindAddress      string // IP to bind; "" for all interfaces
	RcvBuf           int
	QueueSize        int
	SubscriberBuffer int
	// Decode replaces the record for accepted datagrams, e.g.
	// packet.DecodeWithCorners. Nil keeps the core fields only.
	Decode        packet.DecodeFunc
	SocketFactory network.UDPSocketFactory // Optional
	// StatsInterval controls periodic stats logging while connected; 0 disables it.
	StatsInterval time.Duration
	// OnTerminated is called from the session goroutine when the transport
	// fails underneath a connected session.
	OnTerminated func(error)
}

// Session owns at most one listener at a time.
type Session struct {
	cfg   Config
	stats *monitoring.PacketStats

	// lifecycleMu serialises Connect and Disconnect, including teardown.
	lifecycleMu sync.Mutex

	mu      sync.Mutex
	state   State
	conn    *connection
	lastErr error
}

// New creates a disconnected session.
func New(cfg Config) *Session {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}
	return &Session{
		cfg:   cfg,
		stats: monitoring.NewPacketStats(),
	}
}

// connection is one listener plus the subscribers attached to it.
type connection struct {
	listener *network.UDPListener
	done     chan struct{}

	subsMu      sync.Mutex
	subscribers map[string]chan packet.CarTelemetryData
	closed      bool
	bufSize     int
}

// Connect binds a listener on port and starts decoding. It is a no-op when
// already connected. Bind failures match network.ErrBindFailure and leave the
// session disconnected.
func (s *Session) Connect(port int) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.state == Connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	address := net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(port))
	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:       address,
		RcvBuf:        s.cfg.RcvBuf,
		QueueSize:     s.cfg.QueueSize,
		Stats:         s.stats,
		SocketFactory: s.cfg.SocketFactory,
	})
	if err := listener.Start(context.Background()); err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	c := &connection{
		listener:    listener,
		done:        make(chan struct{}),
		subscribers: make(map[string]chan packet.CarTelemetryData),
		bufSize:     s.cfg.SubscriberBuffer,
	}
	s.mu.Lock()
	s.state = Connected
	s.conn = c
	s.lastErr = nil
	s.mu.Unlock()

	go s.run(c)
	monitoring.Logf("Telemetry session connected on %s", listener.LocalAddr())
	return nil
}

// Disconnect stops the listener and closes every subscriber channel. It
// returns once the decode loop has exited and is safe to call when not connected.
func (s *Session) Disconnect() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.state = Disconnected
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	err := c.listener.Close()
	<-c.done
	monitoring.Logf("Telemetry session disconnected")
	return err
}

// run is the decode loop for one connection.
func (s *Session) run(c *connection) {
	var tick <-chan time.Time
	if s.cfg.StatsInterval > 0 {
		ticker := time.NewTicker(s.cfg.StatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	packets := c.listener.Packets()
	for {
		select {
		case buf, ok := <-packets:
			if !ok {
				s.finish(c)
				return
			}
			rec, reason := packet.Inspect(buf)
			s.stats.AddInspected(reason, rec)
			if reason != packet.Decoded {
				continue
			}
			if s.cfg.Decode != nil {
				if rec, ok = s.cfg.Decode(buf); !ok {
					continue
				}
			}
			c.publish(rec, s.stats)
		case <-tick:
			s.stats.LogStats()
		}
	}
}

// finish runs when the listener's stream ends. If the listener terminated on
// its own the session drops back to Disconnected and reports the error.
func (s *Session) finish(c *connection) {
	c.closeSubscribers()

	err := c.listener.Err()
	terminated := false
	if err != nil {
		s.mu.Lock()
		if s.conn == c {
			s.conn = nil
			s.state = Disconnected
			s.lastErr = err
			terminated = true
		}
		s.mu.Unlock()
	}
	close(c.done)

	if terminated {
		monitoring.Logf("Telemetry session lost its listener: %v", err)
		if s.cfg.OnTerminated != nil {
			s.cfg.OnTerminated(err)
		}
	}
}

// TelemetryStream subscribes to decoded records for the current connection.
// The channel is closed on disconnect or termination and does not carry over
// to a later connection. When disconnected the returned channel is already
// closed and the ID is empty.
func (s *Session) TelemetryStream() (string, <-chan packet.CarTelemetryData) {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		ch := make(chan packet.CarTelemetryData)
		close(ch)
		return "", ch
	}
	return c.subscribe()
}

// Unsubscribe closes and removes the subscriber with the given ID.
func (s *Session) Unsubscribe(id string) {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		c.unsubscribe(id)
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound local address, or nil when disconnected.
func (s *Session) Addr() net.Addr {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.listener.LocalAddr()
}

// Err returns the error that ended or prevented the most recent connection.
// It is cleared by a successful Connect.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Terminated reports whether the last connection ended because the transport failed.
func (s *Session) Terminated() bool {
	return errors.Is(s.Err(), network.ErrListenerTerminated)
}

// Stats returns the cumulative counters for this session.
func (s *Session) Stats() monitoring.Snapshot {
	return s.stats.Snapshot()
}

func (c *connection) subscribe() (string, <-chan packet.CarTelemetryData) {
	id := uuid.NewString()
	ch := make(chan packet.CarTelemetryData, c.bufSize)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.closed {
		close(ch)
		return id, ch
	}
	c.subscribers[id] = ch
	return id, ch
}

func (c *connection) unsubscribe(id string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
	}
}

// publish never blocks: a full subscriber loses its oldest record.
func (c *connection) publish(rec packet.CarTelemetryData, stats *monitoring.PacketStats) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subscribers {
		for sent := false; !sent; {
			select {
			case ch <- rec:
				sent = true
			default:
				select {
				case <-ch:
					stats.AddDropped()
				default:
				}
			}
		}
	}
}

func (c *connection) closeSubscribers() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.closed = true
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
}
