package network

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CapturedDatagram is one UDP payload read from a capture file.
type CapturedDatagram struct {
	Timestamp time.Time
	Src       *net.UDPAddr
	DstPort   int
	Payload   []byte
}

// pcapSource yields the UDP payloads of a pcap or pcapng capture. Packets
// that are not UDP, or not addressed to port (when port is non-zero), are skipped.
type pcapSource struct {
	file   *os.File
	source *gopacket.PacketSource
	port   int
}

type linkTypeSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openPCAP(path string, port int) (*pcapSource, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	var r linkTypeSource
	if strings.EqualFold(filepath.Ext(path), ".pcapng") {
		r, err = pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(f)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture header of %s: %w", path, err)
	}

	return &pcapSource{
		file:   f,
		source: gopacket.NewPacketSource(r, r.LinkType()),
		port:   port,
	}, nil
}

// next returns io.EOF at the end of the capture.
func (s *pcapSource) next() (CapturedDatagram, error) {
	for {
		pkt, err := s.source.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return CapturedDatagram{}, io.EOF
			}
			return CapturedDatagram{}, err
		}

		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if s.port != 0 && int(udp.DstPort) != s.port {
			continue
		}

		src := &net.UDPAddr{Port: int(udp.SrcPort)}
		switch ip := pkt.NetworkLayer().(type) {
		case *layers.IPv4:
			src.IP = ip.SrcIP
		case *layers.IPv6:
			src.IP = ip.SrcIP
		}

		return CapturedDatagram{
			Timestamp: pkt.Metadata().Timestamp,
			Src:       src,
			DstPort:   int(udp.DstPort),
			Payload:   append([]byte(nil), udp.Payload...),
		}, nil
	}
}

func (s *pcapSource) close() error {
	return s.file.Close()
}

// ReadPCAPFile calls fn for every UDP datagram to port in the capture, in
// file order. port 0 accepts every UDP datagram.
func ReadPCAPFile(path string, port int, fn func(CapturedDatagram) error) error {
	src, err := openPCAP(path, port)
	if err != nil {
		return err
	}
	defer src.close()

	for {
		d, err := src.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read capture %s: %w", path, err)
		}
		if err := fn(d); err != nil {
			return err
		}
	}
}

// PCAPSocketFactory replays a capture file through the UDPSocket interface,
// so a recorded session can be fed to the listener unchanged.
type PCAPSocketFactory struct {
	Path string
	// Pace sleeps between datagrams to reproduce the capture's timing.
	Pace bool
}

// NewPCAPSocketFactory creates a replay factory for path.
func NewPCAPSocketFactory(path string, pace bool) *PCAPSocketFactory {
	return &PCAPSocketFactory{Path: path, Pace: pace}
}

// ListenUDP opens the capture; only datagrams addressed to laddr's port are replayed.
func (f *PCAPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	port := 0
	if laddr != nil {
		port = laddr.Port
	}
	src, err := openPCAP(f.Path, port)
	if err != nil {
		return nil, err
	}
	local := &net.UDPAddr{Port: port}
	if laddr != nil {
		local.IP = laddr.IP
	}
	return &pcapSocket{
		src:    src,
		pace:   f.Pace,
		local:  local,
		closed: make(chan struct{}),
	}, nil
}

// pcapSocket reports io.EOF at the end of the capture, which the listener
// treats like any other transport failure.
type pcapSocket struct {
	src   *pcapSource
	pace  bool
	local *net.UDPAddr

	lastCapture time.Time
	lastSent    time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *pcapSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if s.isClosed() {
		return 0, nil, net.ErrClosed
	}
	d, err := s.src.next()
	if err != nil {
		if s.isClosed() {
			return 0, nil, net.ErrClosed
		}
		return 0, nil, err
	}

	if s.pace && !s.lastCapture.IsZero() {
		gap := d.Timestamp.Sub(s.lastCapture) - time.Since(s.lastSent)
		if gap > 0 {
			timer := time.NewTimer(gap)
			select {
			case <-s.closed:
				timer.Stop()
				return 0, nil, net.ErrClosed
			case <-timer.C:
			}
		}
	}
	s.lastCapture = d.Timestamp
	s.lastSent = time.Now()

	return copy(b, d.Payload), d.Src, nil
}

func (s *pcapSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *pcapSocket) SetReadBuffer(int) error { return nil }

func (s *pcapSocket) Close() error {
	err := net.ErrClosed
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.src.close()
	})
	return err
}

func (s *pcapSocket) LocalAddr() net.Addr { return s.local }
