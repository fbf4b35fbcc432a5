// Package units provides shared constants and validation for speed units
package units

import "math"

// Unit constants
const (
	KPH = "kph"
	MPH = "mph"
	MPS = "mps"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KPH, MPH, MPS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "kph, mph, mps"
}

// ConvertSpeed converts a speed from km/h, the unit the game reports, to
// the target units. Unknown units are returned unchanged.
func ConvertSpeed(speedKPH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedKPH / 1.609344
	case MPS:
		return speedKPH / 3.6
	default:
		return speedKPH
	}
}

// RoundSpeed converts and rounds to a whole number for display.
func RoundSpeed(speedKPH uint16, targetUnits string) int {
	return int(math.Round(ConvertSpeed(float64(speedKPH), targetUnits)))
}
