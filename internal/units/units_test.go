package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedKPH float64
		units    string
		expected float64
	}{
		{"100 kph to mph", 100.0, MPH, 62.1371},
		{"36 kph to mps", 36.0, MPS, 10.0},
		{"kph unchanged", 287.0, KPH, 287.0},
		{"unknown units default to kph", 50.0, "knots", 50.0},
		{"0 kph to mph", 0.0, MPH, 0.0},
		{"top speed 350 kph to mph", 350.0, MPH, 217.48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertSpeed(tt.speedKPH, tt.units)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.speedKPH, tt.units, result, tt.expected)
			}
		})
	}
}

func TestRoundSpeed(t *testing.T) {
	if got := RoundSpeed(100, MPH); got != 62 {
		t.Errorf("RoundSpeed(100, mph) = %d, want 62", got)
	}
	if got := RoundSpeed(287, KPH); got != 287 {
		t.Errorf("RoundSpeed(287, kph) = %d, want 287", got)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{KPH, true},
		{MPH, true},
		{MPS, true},
		{"kmph", false},
		{"", false},
		{"MPH", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "kph, mph, mps" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
