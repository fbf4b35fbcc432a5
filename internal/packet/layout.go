// Package packet decodes the car-telemetry packet of the game's UDP telemetry
// feed.
package packet

/*
Car Telemetry Packet Layout

Every datagram the game broadcasts starts with the same 29-byte header. The
header's packet-id byte says which of fourteen packet kinds follows; only the
car-telemetry kind (id 6) is decoded here, every other kind is recognised and
discarded.

CAR TELEMETRY PACKET (1352 bytes when complete):
├── Header (29 bytes)
│   ├── packetFormat            uint16  @0
│   ├── gameMajorVersion        uint8   @2
│   ├── gameMinorVersion        uint8   @3
│   ├── packetVersion           uint8   @4
│   ├── packetId                uint8   @5   discriminator
│   ├── sessionUID              uint64  @6
│   ├── sessionTime             float32 @14
│   ├── frameIdentifier         uint32  @18
│   ├── playerCarIndex          uint8   @22  selects the local player's record
│   ├── secondaryPlayerCarIndex uint8   @23  255 = no second player
│   ├── overallFrameIdentifier  uint32  @24
│   └── gameYear                uint8   @28
├── Car records (22 × 60 bytes) starting at @29
│   └── record i lives at 29 + i*60
└── Trailer (3 bytes) @1349
    ├── mfdPanelIndex               uint8
    ├── mfdPanelIndexSecondaryPlayer uint8
    └── suggestedGear               int8

CAR RECORD (60 bytes, little-endian):
    speed u16 @0, throttle f32 @2, steer f32 @6, brake f32 @10, clutch u8 @14,
    gear i8 @15, engineRPM u16 @16, drs u8 @18, revLightsPercent u8 @19,
    revLightsBitValue u16 @20, brakesTemperature [4]u16 @22,
    tyresSurfaceTemperature [4]u8 @30, tyresInnerTemperature [4]u8 @34,
    engineTemperature u16 @38, tyresPressure [4]f32 @40, surfaceType [4]u8 @56

Per-corner arrays are ordered rear-left, rear-right, front-left, front-right.
*/

const (
	HEADER_SIZE            = 29                                     // Bytes before the first car record
	CAR_RECORD_SIZE        = 60                                     // Bytes per car record
	MAX_CARS               = 22                                     // Car records carried by every car-telemetry packet
	PACKET_ID_OFFSET       = 5                                      // Discriminator byte
	PLAYER_INDEX_OFFSET    = 22                                     // Player car index byte
	SECONDARY_INDEX_OFFSET = 23                                     // Secondary player car index byte
	TRAILER_OFFSET         = HEADER_SIZE + MAX_CARS*CAR_RECORD_SIZE // 1349
	TRAILER_SIZE           = 3                                      // MFD panel indexes and suggested gear
	PACKET_SIZE            = TRAILER_OFFSET + TRAILER_SIZE          // 1352

	// NoSecondPlayer is the secondaryPlayerCarIndex value for single-player sessions.
	NoSecondPlayer = 255
)

// Field offsets inside a car record.
const (
	offSpeed             = 0
	offThrottle          = 2
	offSteer             = 6
	offBrake             = 10
	offClutch            = 14
	offGear              = 15
	offEngineRPM         = 16
	offDRS               = 18
	offRevLightsPercent  = 19
	offRevLightsBitValue = 20
	offBrakesTemperature = 22
	offTyresSurfaceTemp  = 30
	offTyresInnerTemp    = 34
	offEngineTemperature = 38
	offTyresPressure     = 40
	offSurfaceType       = 56
)
