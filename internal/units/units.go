// Package units provides shared constants and conversions for speed units.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

const (
	mphPerMPS  = 2.2369362920544
	kmphPerMPS = 3.6
)

// ToMPS converts a speed in the given units to meters per second.
// Unknown units are taken as meters per second.
func ToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case MPH:
		return speed / mphPerMPS
	case KMPH, KPH:
		return speed / kmphPerMPS
	default:
		return speed
	}
}

// ReachableMeters is how far something moving at speed (in the given
// units) gets in elapsedSeconds.
func ReachableMeters(elapsedSeconds, speed float64, speedUnits string) float64 {
	return elapsedSeconds * ToMPS(speed, speedUnits)
}
