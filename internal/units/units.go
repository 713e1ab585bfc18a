package units

import "strings"

// Unit is a display unit for an accumulated duration.
type Unit string

const (
	Hours   Unit = "h"
	Minutes Unit = "m"
	Seconds Unit = "s"
)

// Parse normalizes a configured unit string. Anything unrecognized is
// returned as-is and converts as seconds.
func Parse(s string) Unit {
	return Unit(strings.ToLower(strings.TrimSpace(s)))
}

// Convert converts seconds to the requested unit.
// Unknown or empty units fall back to seconds.
func Convert(seconds float64, unit Unit) float64 {
	switch Parse(string(unit)) {
	case Hours:
		return seconds / 3600.0
	case Minutes:
		return seconds / 60.0
	default:
		return seconds
	}
}

// Known reports whether u is one of h, m or s.
func Known(u Unit) bool {
	switch Parse(string(u)) {
	case Hours, Minutes, Seconds:
		return true
	}
	return false
}
