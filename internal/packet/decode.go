package packet

import (
	"encoding/binary"
	"math"
)

// Reason is the outcome of inspecting one datagram.
type Reason int

const (
	Decoded         Reason = iota // A record was produced
	ShortBuffer                   // Too short to hold the discriminator
	ForeignPacket                 // Some other packet kind; the common case
	IndexOutOfRange               // Player index beyond the car array
	Truncated                     // Player's record runs past the end of the buffer
)

var reasonNames = [...]string{
	Decoded:         "decoded",
	ShortBuffer:     "short_buffer",
	ForeignPacket:   "foreign_packet",
	IndexOutOfRange: "index_out_of_range",
	Truncated:       "truncated",
}

func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// Malformed reports whether the datagram was damaged rather than simply a
// packet kind we do not decode.
func (r Reason) Malformed() bool {
	return r == ShortBuffer || r == IndexOutOfRange || r == Truncated
}

// DecodeFunc turns a raw datagram into the player's telemetry record.
type DecodeFunc func(buf []byte) (CarTelemetryData, bool)

// Decode extracts the local player's record from a car-telemetry datagram.
// Corners and Hints are left nil. It never panics and has no side effects.
func Decode(buf []byte) (CarTelemetryData, bool) {
	rec, reason := Inspect(buf)
	return rec, reason == Decoded
}

// DecodeWithCorners is Decode plus the per-corner group, and the player hints
// when the buffer reaches the trailer.
func DecodeWithCorners(buf []byte) (CarTelemetryData, bool) {
	rec, off, reason := locate(buf)
	if reason != Decoded {
		return CarTelemetryData{}, false
	}
	rec.Corners = decodeCorners(buf[off : off+CAR_RECORD_SIZE])
	if len(buf) >= TRAILER_OFFSET+TRAILER_SIZE {
		rec.Hints = &PlayerHints{
			MFDPanelIndex:                buf[TRAILER_OFFSET],
			MFDPanelIndexSecondaryPlayer: buf[TRAILER_OFFSET+1],
			SuggestedGear:                int8(buf[TRAILER_OFFSET+2]),
		}
	}
	return rec, true
}

// Inspect is Decode with the rejection reason exposed, for counters.
func Inspect(buf []byte) (CarTelemetryData, Reason) {
	rec, _, reason := locate(buf)
	return rec, reason
}

func locate(buf []byte) (CarTelemetryData, int, Reason) {
	id, ok := PeekPacketID(buf)
	if !ok {
		return CarTelemetryData{}, 0, ShortBuffer
	}
	if id != CarTelemetry {
		return CarTelemetryData{}, 0, ForeignPacket
	}
	if len(buf) < PLAYER_INDEX_OFFSET+1 {
		return CarTelemetryData{}, 0, Truncated
	}
	idx := int(buf[PLAYER_INDEX_OFFSET])
	if idx >= MAX_CARS {
		return CarTelemetryData{}, 0, IndexOutOfRange
	}
	off := HEADER_SIZE + idx*CAR_RECORD_SIZE
	if len(buf) < off+CAR_RECORD_SIZE {
		return CarTelemetryData{}, 0, Truncated
	}
	return decodeCore(buf[off : off+CAR_RECORD_SIZE]), off, Decoded
}

// decodeCore reads the fields every consumer needs. rec must be CAR_RECORD_SIZE long.
func decodeCore(rec []byte) CarTelemetryData {
	le := binary.LittleEndian
	return CarTelemetryData{
		Speed:            le.Uint16(rec[offSpeed:]),
		Throttle:         math.Float32frombits(le.Uint32(rec[offThrottle:])),
		Steer:            math.Float32frombits(le.Uint32(rec[offSteer:])),
		Brake:            math.Float32frombits(le.Uint32(rec[offBrake:])),
		Clutch:           rec[offClutch],
		Gear:             int8(rec[offGear]),
		EngineRPM:        le.Uint16(rec[offEngineRPM:]),
		DRS:              rec[offDRS] == 1,
		RevLightsPercent: rec[offRevLightsPercent],
	}
}

func decodeCorners(rec []byte) *CornerTelemetry {
	le := binary.LittleEndian
	c := &CornerTelemetry{
		RevLightsBitValue: le.Uint16(rec[offRevLightsBitValue:]),
		EngineTemperature: le.Uint16(rec[offEngineTemperature:]),
	}
	for i := 0; i < 4; i++ {
		c.BrakesTemperature[i] = le.Uint16(rec[offBrakesTemperature+2*i:])
		c.TyresSurfaceTemperature[i] = rec[offTyresSurfaceTemp+i]
		c.TyresInnerTemperature[i] = rec[offTyresInnerTemp+i]
		c.TyresPressure[i] = math.Float32frombits(le.Uint32(rec[offTyresPressure+4*i:]))
		c.SurfaceType[i] = rec[offSurfaceType+i]
	}
	return c
}
