package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/f1-telemetry/internal/monitoring"
)

// MaxDatagramSize bounds a single read. The largest packet the game sends
// (final classification) is well under this.
const MaxDatagramSize = 2048

var (
	// ErrBindFailure matches errors from Start when the socket could not be acquired.
	ErrBindFailure = errors.New("udp bind failed")
	// ErrListenerTerminated matches Err after the transport failed on its own.
	ErrListenerTerminated = errors.New("udp listener terminated")
)

// BindError reports why a listener could not acquire its socket.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on UDP address %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBindFailure, e.Err}
}

// PacketStats receives listener-level counters.
type PacketStats interface {
	AddPacket(bytes int)
	AddDropped()
}

// UDPListener owns one bound UDP socket and hands every datagram it reads to
// Packets, in arrival order, through a bounded drop-oldest queue.
type UDPListener struct {
	address       string
	rcvBuf        int
	queueSize     int
	stats         PacketStats
	socketFactory UDPSocketFactory

	mu      sync.Mutex
	conn    UDPSocket
	started bool
	err     error

	closing   atomic.Bool
	closeOnce sync.Once
	packets   chan []byte
	done      chan struct{}
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int              // OS receive buffer; 0 keeps the system default
	QueueSize     int              // Datagrams buffered between the socket and the consumer
	Stats         PacketStats      // Optional
	SocketFactory UDPSocketFactory // Optional: factory for creating UDP sockets (for testing and replay)
}

// DefaultQueueSize holds roughly four seconds of the game's highest send rate.
const DefaultQueueSize = 256

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStats = noopStats{}
	if config.Stats != nil {
		stats = config.Stats
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	socketFactory := config.SocketFactory
	if socketFactory == nil {
		socketFactory = NewRealUDPSocketFactory()
	}

	return &UDPListener{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		queueSize:     queueSize,
		stats:         stats,
		socketFactory: socketFactory,
		packets:       make(chan []byte, queueSize),
		done:          make(chan struct{}),
	}
}

type noopStats struct{}

func (noopStats) AddPacket(int) {}
func (noopStats) AddDropped()   {}

// Start binds the socket and starts the receive loop. A listener can be
// started once; bind failures are returned as *BindError. Cancelling ctx
// closes the listener.
func (l *UDPListener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("listener on %s already started", l.address)
	}
	if l.closing.Load() {
		l.mu.Unlock()
		return &BindError{Address: l.address, Err: net.ErrClosed}
	}

	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		l.mu.Unlock()
		return &BindError{Address: l.address, Err: err}
	}

	conn, err := l.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		l.mu.Unlock()
		return &BindError{Address: l.address, Err: err}
	}
	l.conn = conn
	l.started = true
	l.mu.Unlock()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s (queue %d)", conn.LocalAddr(), l.queueSize)

	go l.receive(conn)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-l.done:
		}
	}()
	return nil
}

// receive is the only writer to l.packets.
func (l *UDPListener) receive(conn UDPSocket) {
	defer close(l.done)
	defer close(l.packets)

	buffer := make([]byte, MaxDatagramSize)
	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if l.closing.Load() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.mu.Lock()
			l.err = fmt.Errorf("%w: %w", ErrListenerTerminated, err)
			l.mu.Unlock()
			_ = conn.Close()
			monitoring.Logf("UDP listener on %s terminated: %v", l.address, err)
			return
		}

		pkt := make([]byte, n)
		copy(pkt, buffer[:n])
		l.stats.AddPacket(n)
		l.enqueue(pkt)
	}
}

// enqueue never blocks: when the queue is full the oldest datagram is
// discarded so the consumer always sees the freshest data.
func (l *UDPListener) enqueue(pkt []byte) {
	for {
		select {
		case l.packets <- pkt:
			return
		default:
		}
		select {
		case <-l.packets:
			l.stats.AddDropped()
		default:
		}
	}
}

// Packets returns the datagram stream. It is closed when the receive loop exits.
func (l *UDPListener) Packets() <-chan []byte {
	return l.packets
}

// Done is closed once the receive loop has exited.
func (l *UDPListener) Done() <-chan struct{} {
	return l.done
}

// Err returns nil while running or after Close, and an error matching
// ErrListenerTerminated if the transport failed underneath the listener.
func (l *UDPListener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// LocalAddr returns the bound address, or nil before Start.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close stops the receive loop and releases the socket. Closing the socket
// aborts any pending read, so Close only waits for the loop to notice, never
// for network traffic. It is safe to call Close multiple times.
func (l *UDPListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closing.Store(true)
		l.mu.Lock()
		conn, started := l.conn, l.started
		l.mu.Unlock()
		if !started {
			// Start now refuses to run, so nothing else closes these.
			close(l.packets)
			close(l.done)
			return
		}
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		<-l.done
		monitoring.Logf("UDP listener on %s stopped", l.address)
	})
	return err
}
