// Package canbus mirrors decoded telemetry onto a CAN bus as OBD-II style
// frames, so off-the-shelf gauges and loggers can display it.
package canbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/banshee-data/f1-telemetry/internal/monitoring"
	"github.com/banshee-data/f1-telemetry/internal/packet"
)

// Frame IDs. Standard OBD-II PIDs where one exists, custom IDs otherwise.
const (
	PIDEngineRPM    = 0x0C // (A*256+B)/4 rpm, saturates at maxOBDRPM
	PIDVehicleSpeed = 0x0D // A km/h, saturates at 255
	PIDThrottle     = 0x11 // A*100/255 %
	PIDSpeed16      = 0xD0 // full-range speed, km/h, u16
	PIDGear         = 0xD1 // selected gear, i8: -1 reverse, 0 neutral
)

// maxOBDRPM is the largest whole rpm PID 0x0C can carry.
const maxOBDRPM = 16383

// Frames converts one record into the frames sent for it, in send order.
func Frames(rec packet.CarTelemetryData) []can.Frame {
	speed := rec.Speed
	if speed > 255 {
		speed = 255
	}
	rpm := min(rec.EngineRPM, maxOBDRPM)
	throttle := rec.Throttle
	switch {
	case throttle < 0:
		throttle = 0
	case throttle > 1:
		throttle = 1
	}
	return []can.Frame{
		unsignedFrame(PIDVehicleSpeed, 1, uint64(speed)),
		unsignedFrame(PIDSpeed16, 2, uint64(rec.Speed)),
		unsignedFrame(PIDEngineRPM, 2, uint64(rpm)*4),
		unsignedFrame(PIDThrottle, 1, uint64(throttle*255)),
		unsignedFrame(PIDGear, 1, uint64(uint8(rec.Gear))),
	}
}

// unsignedFrame builds a frame carrying value big-endian in length bytes.
func unsignedFrame(id uint32, length uint8, value uint64) can.Frame {
	frame := can.Frame{ID: id, Length: length}
	switch length {
	case 1:
		frame.Data[0] = uint8(value)
	case 2:
		binary.BigEndian.PutUint16(frame.Data[:2], uint16(value))
	case 4:
		binary.BigEndian.PutUint32(frame.Data[:4], uint32(value))
	case 8:
		binary.BigEndian.PutUint64(frame.Data[:8], value)
	}
	return frame
}

// Sink transmits telemetry frames on one CAN connection.
type Sink struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// Dial opens a CAN connection. network is "can" for a SocketCAN interface
// such as vcan0, or "udp" for the multicast emulation used in development.
func Dial(ctx context.Context, network, device string) (*Sink, error) {
	conn, err := socketcan.DialContext(ctx, network, device)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN %s device %s: %w", network, device, err)
	}
	monitoring.Logf("CAN sink connected on %s/%s", network, device)
	return NewSink(conn), nil
}

// NewSink transmits on an already open connection.
func NewSink(conn net.Conn) *Sink {
	return &Sink{conn: conn, tx: socketcan.NewTransmitter(conn)}
}

// Send transmits every frame for rec.
func (s *Sink) Send(ctx context.Context, rec packet.CarTelemetryData) error {
	for _, frame := range Frames(rec) {
		if err := s.tx.TransmitFrame(ctx, frame); err != nil {
			return fmt.Errorf("transmit frame 0x%X: %w", frame.ID, err)
		}
	}
	return nil
}

// Run sends every record from records until the channel closes or ctx is done.
func (s *Sink) Run(ctx context.Context, records <-chan packet.CarTelemetryData) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := s.Send(ctx, rec); err != nil {
				return err
			}
		}
	}
}

// Close closes the CAN connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}
