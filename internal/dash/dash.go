// Package dash drives a serial shift-light display from decoded telemetry.
//
// Each record becomes one ASCII line:
//
//	G<gear> R<rpm> S<speed> L<rev lights %> D<drs>\n
//
// for example "G4 R11250 S287 L82 D1". Gear is R, N or 1-8. Speed is in
// km/h unless the sink is configured with other display units.
package dash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/f1-telemetry/internal/monitoring"
	"github.com/banshee-data/f1-telemetry/internal/packet"
	"github.com/banshee-data/f1-telemetry/internal/units"
)

var ErrWriteFailed = errors.New("failed to write to dash serial port")

// Sink writes telemetry lines to a serial port.
type Sink struct {
	mu    sync.Mutex
	port  io.WriteCloser
	units string
}

// Open opens the serial port at path.
func Open(path string, opts PortOptions) (*Sink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open dash serial port %s: %w", path, err)
	}
	monitoring.Logf("Dash connected on %s at %d baud", path, mode.BaudRate)
	return NewSink(port), nil
}

// NewSink wraps an already open port.
func NewSink(port io.WriteCloser) *Sink {
	return &Sink{port: port, units: units.KPH}
}

// SetSpeedUnits selects the units the speed field is shown in.
func (s *Sink) SetSpeedUnits(u string) error {
	if u == "" {
		u = units.KPH
	}
	if !units.IsValid(u) {
		return fmt.Errorf("invalid dash units %q: must be one of %s", u, units.GetValidUnitsString())
	}
	s.mu.Lock()
	s.units = u
	s.mu.Unlock()
	return nil
}

// FormatLine renders rec as one dash line including the trailing newline,
// with the speed converted to speedUnits.
func FormatLine(rec packet.CarTelemetryData, speedUnits string) string {
	drs := 0
	if rec.DRS {
		drs = 1
	}
	speed := units.RoundSpeed(rec.Speed, speedUnits)
	return fmt.Sprintf("G%s R%d S%d L%d D%d\n", rec.GearLabel(), rec.EngineRPM, speed, rec.RevLightsPercent, drs)
}

// Write sends one record.
func (s *Sink) Write(rec packet.CarTelemetryData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := FormatLine(rec, s.units)
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Run writes every record from records until the channel closes or ctx is
// done. A write error stops the sink.
func (s *Sink) Run(ctx context.Context, records <-chan packet.CarTelemetryData) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := s.Write(rec); err != nil {
				return fmt.Errorf("dash write: %w", err)
			}
		}
	}
}

// Close releases the serial port.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
