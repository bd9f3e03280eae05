package blink

import "time"

// Range holds the bounds used to map a temperature onto a blink delay.
// Delays are in milliseconds, temperatures in whole degrees.
type Range struct {
	DelayMin int
	DelayMax int
	TempMin  int
	TempMax  int
}

// Clamp constrains v to [TempMin, TempMax].
func (r Range) Clamp(v int) int {
	if v > r.TempMax {
		v = r.TempMax
	}
	if v < r.TempMin {
		v = r.TempMin
	}
	return v
}

// CalculateDelay maps temperature from [TempMin, TempMax] onto the delay range
// with the delay bounds reversed: TempMin yields DelayMax and TempMax yields
// DelayMin. With DelayMin < DelayMax a hotter reading blinks faster.
//
// The arithmetic is done in floating point and truncated toward zero. The result
// is not clamped, so a temperature outside the range (or a range with
// DelayMin > DelayMax) produces whatever the formula gives.
// A zero-width temperature range returns DelayMax.
func CalculateDelay(temperature int, r Range) int {
	oldRange := r.TempMax - r.TempMin
	if oldRange == 0 {
		return r.DelayMax
	}
	newRange := r.DelayMin - r.DelayMax
	return int(float64(temperature-r.TempMin)*float64(newRange)/float64(oldRange) + float64(r.DelayMax))
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
