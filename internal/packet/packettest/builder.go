// Package packettest builds synthetic telemetry datagrams for tests and for
// the replay tooling.
package packettest

import (
	"encoding/binary"
	"math"

	"github.com/banshee-data/f1-telemetry/internal/packet"
)

// Builder assembles a car-telemetry datagram. The zero value produces a
// complete 1352-byte packet with every record zeroed and the player at index 0.
type Builder struct {
	Header  packet.PacketHeader
	Records [packet.MAX_CARS]packet.CarTelemetryData
	Hints   packet.PlayerHints
}

// NewBuilder returns a Builder for a car-telemetry packet with the player at playerIndex.
func NewBuilder(playerIndex uint8) *Builder {
	return &Builder{
		Header: packet.PacketHeader{
			PacketFormat:            2023,
			GameMajorVersion:        1,
			GameMinorVersion:        18,
			PacketVersion:           1,
			PacketID:                packet.CarTelemetry,
			SessionUID:              0xC0FFEE,
			PlayerCarIndex:          playerIndex,
			SecondaryPlayerCarIndex: packet.NoSecondPlayer,
			GameYear:                23,
		},
	}
}

// Player sets the record at the header's player index.
func (b *Builder) Player(rec packet.CarTelemetryData) *Builder {
	b.Records[int(b.Header.PlayerCarIndex)%packet.MAX_CARS] = rec
	return b
}

// Bytes encodes the full packet.
func (b *Builder) Bytes() []byte {
	buf := make([]byte, packet.PACKET_SIZE)
	PutHeader(buf, b.Header)
	for i := range b.Records {
		PutRecord(buf[packet.HEADER_SIZE+i*packet.CAR_RECORD_SIZE:], b.Records[i])
	}
	buf[packet.TRAILER_OFFSET] = b.Hints.MFDPanelIndex
	buf[packet.TRAILER_OFFSET+1] = b.Hints.MFDPanelIndexSecondaryPlayer
	buf[packet.TRAILER_OFFSET+2] = byte(b.Hints.SuggestedGear)
	return buf
}

// PutHeader writes h into the first HEADER_SIZE bytes of buf.
func PutHeader(buf []byte, h packet.PacketHeader) {
	le := binary.LittleEndian
	le.PutUint16(buf[0:], h.PacketFormat)
	buf[2] = h.GameMajorVersion
	buf[3] = h.GameMinorVersion
	buf[4] = h.PacketVersion
	buf[packet.PACKET_ID_OFFSET] = byte(h.PacketID)
	le.PutUint64(buf[6:], h.SessionUID)
	le.PutUint32(buf[14:], math.Float32bits(h.SessionTime))
	le.PutUint32(buf[18:], h.FrameIdentifier)
	buf[packet.PLAYER_INDEX_OFFSET] = h.PlayerCarIndex
	buf[packet.SECONDARY_INDEX_OFFSET] = h.SecondaryPlayerCarIndex
	le.PutUint32(buf[24:], h.OverallFrameIdentifier)
	buf[28] = h.GameYear
}

// PutRecord writes rec into the first CAR_RECORD_SIZE bytes of buf. A nil
// Corners group is written as zeros.
func PutRecord(buf []byte, rec packet.CarTelemetryData) {
	le := binary.LittleEndian
	le.PutUint16(buf[0:], rec.Speed)
	le.PutUint32(buf[2:], math.Float32bits(rec.Throttle))
	le.PutUint32(buf[6:], math.Float32bits(rec.Steer))
	le.PutUint32(buf[10:], math.Float32bits(rec.Brake))
	buf[14] = rec.Clutch
	buf[15] = byte(rec.Gear)
	le.PutUint16(buf[16:], rec.EngineRPM)
	if rec.DRS {
		buf[18] = 1
	} else {
		buf[18] = 0
	}
	buf[19] = rec.RevLightsPercent

	c := rec.Corners
	if c == nil {
		c = &packet.CornerTelemetry{}
	}
	le.PutUint16(buf[20:], c.RevLightsBitValue)
	for i := 0; i < 4; i++ {
		le.PutUint16(buf[22+2*i:], c.BrakesTemperature[i])
		buf[30+i] = c.TyresSurfaceTemperature[i]
		buf[34+i] = c.TyresInnerTemperature[i]
		le.PutUint32(buf[40+4*i:], math.Float32bits(c.TyresPressure[i]))
		buf[56+i] = c.SurfaceType[i]
	}
	le.PutUint16(buf[38:], c.EngineTemperature)
}

// Foreign returns a header-only datagram of another packet kind, padded to size bytes.
func Foreign(id packet.PacketID, size int) []byte {
	if size < packet.HEADER_SIZE {
		size = packet.HEADER_SIZE
	}
	buf := make([]byte, size)
	h := NewBuilder(0).Header
	h.PacketID = id
	PutHeader(buf, h)
	return buf
}
