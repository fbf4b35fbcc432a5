package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortHeader is returned by ReadHeader when the buffer cannot hold a full header.
var ErrShortHeader = errors.New("buffer shorter than packet header")

// PacketID identifies the kind of packet that follows the header.
type PacketID uint8

const (
	Motion PacketID = iota
	Session
	LapData
	Event
	Participants
	CarSetups
	CarTelemetry
	CarStatus
	FinalClassification
	LobbyInfo
	CarDamage
	SessionHistory
	TyreSets
	MotionEx
)

var packetIDNames = [...]string{
	Motion:              "motion",
	Session:             "session",
	LapData:             "lap_data",
	Event:               "event",
	Participants:        "participants",
	CarSetups:           "car_setups",
	CarTelemetry:        "car_telemetry",
	CarStatus:           "car_status",
	FinalClassification: "final_classification",
	LobbyInfo:           "lobby_info",
	CarDamage:           "car_damage",
	SessionHistory:      "session_history",
	TyreSets:            "tyre_sets",
	MotionEx:            "motion_ex",
}

// Known reports whether id is one of the packet kinds defined by the wire protocol.
func (id PacketID) Known() bool {
	return int(id) < len(packetIDNames)
}

func (id PacketID) String() string {
	if id.Known() {
		return packetIDNames[id]
	}
	return fmt.Sprintf("unknown(%d)", uint8(id))
}

// PacketHeader is the metadata prefixing every packet.
type PacketHeader struct {
	PacketFormat            uint16   `json:"packet_format"`
	GameMajorVersion        uint8    `json:"game_major_version"`
	GameMinorVersion        uint8    `json:"game_minor_version"`
	PacketVersion           uint8    `json:"packet_version"`
	PacketID                PacketID `json:"packet_id"`
	SessionUID              uint64   `json:"session_uid"`
	SessionTime             float32  `json:"session_time"`
	FrameIdentifier         uint32   `json:"frame_identifier"`
	PlayerCarIndex          uint8    `json:"player_car_index"`
	SecondaryPlayerCarIndex uint8    `json:"secondary_player_car_index"` // NoSecondPlayer when absent
	OverallFrameIdentifier  uint32   `json:"overall_frame_identifier"`
	GameYear                uint8    `json:"game_year"`
}

// HasSecondPlayer reports whether a split-screen second player is present.
func (h PacketHeader) HasSecondPlayer() bool {
	return h.SecondaryPlayerCarIndex != NoSecondPlayer
}

// ReadHeader decodes the full 29-byte header at the start of buf.
func ReadHeader(buf []byte) (PacketHeader, error) {
	if len(buf) < HEADER_SIZE {
		return PacketHeader{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortHeader, len(buf), HEADER_SIZE)
	}
	le := binary.LittleEndian
	return PacketHeader{
		PacketFormat:            le.Uint16(buf[0:2]),
		GameMajorVersion:        buf[2],
		GameMinorVersion:        buf[3],
		PacketVersion:           buf[4],
		PacketID:                PacketID(buf[PACKET_ID_OFFSET]),
		SessionUID:              le.Uint64(buf[6:14]),
		SessionTime:             math.Float32frombits(le.Uint32(buf[14:18])),
		FrameIdentifier:         le.Uint32(buf[18:22]),
		PlayerCarIndex:          buf[PLAYER_INDEX_OFFSET],
		SecondaryPlayerCarIndex: buf[SECONDARY_INDEX_OFFSET],
		OverallFrameIdentifier:  le.Uint32(buf[24:28]),
		GameYear:                buf[28],
	}, nil
}

// PeekPacketID returns the discriminator byte without decoding the rest of the header.
func PeekPacketID(buf []byte) (PacketID, bool) {
	if len(buf) < PACKET_ID_OFFSET+1 {
		return 0, false
	}
	return PacketID(buf[PACKET_ID_OFFSET]), true
}
