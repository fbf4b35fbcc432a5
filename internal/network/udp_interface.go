package network

import (
	"net"
	"sync"
)

// UDPSocket defines the socket operations the listener needs.
// This abstraction enables unit testing and pcap replay without a real network.
type UDPSocket interface {
	// ReadFromUDP blocks until a datagram arrives or the socket is closed.
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)

	// SetReadBuffer sets the size of the operating system's receive buffer.
	SetReadBuffer(bytes int) error

	// Close closes the socket. Any blocked ReadFromUDP returns net.ErrClosed.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// UDPSocketFactory creates bound UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
// *net.UDPConn satisfies UDPSocket directly.
type RealUDPSocketFactory struct{}

// NewRealUDPSocketFactory creates a new RealUDPSocketFactory.
func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

// ListenUDP binds a new UDP socket. SO_REUSEADDR is left unset so a port
// already held by another socket fails the bind.
func (f *RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket implements UDPSocket for testing. Datagrams pushed with
// Deliver are returned in order; reads block until data arrives, Fail is
// called, or the socket is closed.
type MockUDPSocket struct {
	packets chan MockUDPPacket
	closed  chan struct{}
	fail    chan error

	mu             sync.Mutex
	closeCalls     int
	readBufferSize int
	localAddr      *net.UDPAddr
}

// MockUDPPacket is one datagram delivered by a MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockUDPSocket creates a mock socket pre-loaded with packets.
func NewMockUDPSocket(packets ...MockUDPPacket) *MockUDPSocket {
	m := &MockUDPSocket{
		packets: make(chan MockUDPPacket, len(packets)+1024),
		closed:  make(chan struct{}),
		fail:    make(chan error, 1),
		localAddr: &net.UDPAddr{
			IP:   net.ParseIP("127.0.0.1"),
			Port: 20777,
		},
	}
	for _, p := range packets {
		m.packets <- p
	}
	return m
}

// Deliver queues a datagram for the next read.
func (m *MockUDPSocket) Deliver(data []byte) {
	m.packets <- MockUDPPacket{Data: data, Addr: &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 50000}}
}

// Fail makes the next blocked read return err, simulating a transport failure.
func (m *MockUDPSocket) Fail(err error) {
	select {
	case m.fail <- err:
	default:
	}
}

// ReadFromUDP returns the next queued datagram.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	select {
	case <-m.closed:
		return 0, nil, net.ErrClosed
	default:
	}
	select {
	case <-m.closed:
		return 0, nil, net.ErrClosed
	case err := <-m.fail:
		return 0, nil, err
	case p := <-m.packets:
		return copy(b, p.Data), p.Addr, nil
	}
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBufferSize = bytes
	return nil
}

// Close marks the socket closed and releases blocked readers.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if m.closeCalls == 1 {
		close(m.closed)
		return nil
	}
	return net.ErrClosed
}

// Closed reports whether Close has been called.
func (m *MockUDPSocket) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// ReadBufferSize returns the value passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.localAddr
}

// MockUDPSocketFactory implements UDPSocketFactory for testing. Each
// ListenUDP call hands out the next socket from Sockets, or a fresh one when
// the list is exhausted.
type MockUDPSocketFactory struct {
	mu      sync.Mutex
	Sockets []*MockUDPSocket
	// Error is returned by ListenUDP if set.
	Error error
	// ListenCalls records all ListenUDP calls.
	ListenCalls []MockListenCall
	opened      []*MockUDPSocket
}

// MockListenCall records a call to ListenUDP.
type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

// NewMockUDPSocketFactory creates a factory that hands out sockets in order.
func NewMockUDPSocketFactory(sockets ...*MockUDPSocket) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{Sockets: sockets}
}

// ListenUDP returns the next mock socket.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListenCalls = append(f.ListenCalls, MockListenCall{Network: network, Addr: laddr})
	if f.Error != nil {
		return nil, f.Error
	}
	var s *MockUDPSocket
	if len(f.Sockets) > 0 {
		s = f.Sockets[0]
		f.Sockets = f.Sockets[1:]
	} else {
		s = NewMockUDPSocket()
	}
	f.opened = append(f.opened, s)
	return s, nil
}

// Calls returns the number of ListenUDP calls so far.
func (f *MockUDPSocketFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ListenCalls)
}

// Opened returns the sockets handed out so far.
func (f *MockUDPSocketFactory) Opened() []*MockUDPSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockUDPSocket(nil), f.opened...)
}
