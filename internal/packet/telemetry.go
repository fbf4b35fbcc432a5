package packet

// Corner indexes for the per-corner arrays in CornerTelemetry.
const (
	RearLeft = iota
	RearRight
	FrontLeft
	FrontRight
)

// Gear values with special meaning.
const (
	GearReverse int8 = -1
	GearNeutral int8 = 0
)

// CarTelemetryData is one car's instantaneous readings.
//
// Corners and Hints are nil when the decoder did not read them. A nil group
// means "not decoded", never "all zero".
type CarTelemetryData struct {
	Speed            uint16  `json:"speed"`    // km/h
	Throttle         float32 `json:"throttle"` // 0.0 to 1.0
	Steer            float32 `json:"steer"`    // -1.0 full lock left, 1.0 full lock right
	Brake            float32 `json:"brake"`    // 0.0 to 1.0
	Clutch           uint8   `json:"clutch"`   // 0 to 100
	Gear             int8    `json:"gear"`     // -1 reverse, 0 neutral, 1-8
	EngineRPM        uint16  `json:"engine_rpm"`
	DRS              bool    `json:"drs"`
	RevLightsPercent uint8   `json:"rev_lights_percent"`

	Corners *CornerTelemetry `json:"corners,omitempty"`
	Hints   *PlayerHints     `json:"hints,omitempty"`
}

// CornerTelemetry holds the remainder of the car record: temperatures,
// pressures and surface types, indexed by RearLeft..FrontRight.
type CornerTelemetry struct {
	RevLightsBitValue       uint16     `json:"rev_lights_bit_value"` // bit 0 leftmost LED, bit 14 rightmost
	BrakesTemperature       [4]uint16  `json:"brakes_temperature"`   // celsius
	TyresSurfaceTemperature [4]uint8   `json:"tyres_surface_temperature"`
	TyresInnerTemperature   [4]uint8   `json:"tyres_inner_temperature"`
	EngineTemperature       uint16     `json:"engine_temperature"`
	TyresPressure           [4]float32 `json:"tyres_pressure"` // PSI
	SurfaceType             [4]uint8   `json:"surface_type"`
}

// PlayerHints are the player-only fields that follow the car records.
type PlayerHints struct {
	MFDPanelIndex                uint8 `json:"mfd_panel_index"` // 255 = MFD closed
	MFDPanelIndexSecondaryPlayer uint8 `json:"mfd_panel_index_secondary_player"`
	SuggestedGear                int8  `json:"suggested_gear"` // 0 = no suggestion
}

// GearLabel renders the gear the way a dash shows it.
func (c CarTelemetryData) GearLabel() string {
	switch {
	case c.Gear == GearReverse:
		return "R"
	case c.Gear == GearNeutral:
		return "N"
	case c.Gear > 0 && c.Gear <= 9:
		return string(rune('0' + c.Gear))
	default:
		return "?"
	}
}
