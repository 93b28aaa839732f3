package spectrum

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// UnitUnset marks a spectrum whose position units have not been declared yet
	UnitUnset        Unit = ""
	UnitNanometer    Unit = "nm"
	UnitHertz        Unit = "Hz"
	UnitRadPerSecond Unit = "rad/s"
	UnitWavenumber   Unit = "cm^-1"

	// SpeedOfLight in centimetres per second
	SpeedOfLight = 2.99792458e10

	nmPerCm = 1e7
)

// Unit is the unit system of the position axis.
type Unit string

func (u Unit) String() string {
	if u == UnitUnset {
		return "unset"
	}
	return string(u)
}

// Valid reports whether u is one of the concrete unit systems.
func (u Unit) Valid() bool {
	switch u {
	case UnitNanometer, UnitHertz, UnitRadPerSecond, UnitWavenumber:
		return true
	}
	return false
}

// ParseUnit resolves a unit label, including the labels used by acquisition
// software ("s^-1" for angular frequency, "1/cm" for wavenumber).
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nm", "nanometer", "nanometre":
		return UnitNanometer, nil
	case "hz", "hertz":
		return UnitHertz, nil
	case "rad/s", "s^-1", "rad_s":
		return UnitRadPerSecond, nil
	case "cm^-1", "cm-1", "1/cm", "wavenumber":
		return UnitWavenumber, nil
	case "":
		return UnitUnset, nil
	default:
		return UnitUnset, fmt.Errorf("%w: unknown unit %q", ErrInvalidArgument, s)
	}
}

func (u *Unit) UnmarshalYAML(value *yaml.Node) error {
	unit, err := ParseUnit(value.Value)
	if err != nil {
		return fmt.Errorf("spectrum.Unit: %w", err)
	}

	*u = unit
	return nil
}

func (u Unit) MarshalYAML() (interface{}, error) {
	return string(u), nil
}

// transform maps one axis value to another unit. It reports false when the
// value would be a divisor of zero.
type transform func(v float64) (float64, bool)

type unitPair struct {
	from, to Unit
}

// primitives are the directly defined conversions.
var primitives = map[unitPair]transform{
	{UnitNanometer, UnitHertz}: func(l float64) (float64, bool) {
		return SpeedOfLight / (l / nmPerCm), l != 0
	},
	{UnitHertz, UnitNanometer}: func(f float64) (float64, bool) {
		return SpeedOfLight / f * nmPerCm, f != 0
	},
	{UnitNanometer, UnitRadPerSecond}: func(l float64) (float64, bool) {
		return 2 * math.Pi * SpeedOfLight / (l / nmPerCm), l != 0
	},
	{UnitRadPerSecond, UnitNanometer}: func(w float64) (float64, bool) {
		return 2 * math.Pi * SpeedOfLight / w * nmPerCm, w != 0
	},
	{UnitRadPerSecond, UnitHertz}: func(w float64) (float64, bool) {
		return w / (2 * math.Pi), true
	},
	{UnitHertz, UnitRadPerSecond}: func(f float64) (float64, bool) {
		return f * 2 * math.Pi, true
	},
	{UnitNanometer, UnitWavenumber}: func(l float64) (float64, bool) {
		return nmPerCm / l, l != 0
	},
	{UnitWavenumber, UnitNanometer}: func(k float64) (float64, bool) {
		return nmPerCm / k, k != 0
	},
}

// chains are the conversions composed of primitives through wavelength.
//
//	Hz    -> cm^-1 : Hz -> nm -> cm^-1
//	cm^-1 -> Hz    : cm^-1 -> nm -> Hz
//	rad/s -> cm^-1 : rad/s -> nm -> cm^-1
//	cm^-1 -> rad/s : cm^-1 -> nm -> rad/s
var chains = map[unitPair][]Unit{
	{UnitHertz, UnitWavenumber}:        {UnitHertz, UnitNanometer, UnitWavenumber},
	{UnitWavenumber, UnitHertz}:        {UnitWavenumber, UnitNanometer, UnitHertz},
	{UnitRadPerSecond, UnitWavenumber}: {UnitRadPerSecond, UnitNanometer, UnitWavenumber},
	{UnitWavenumber, UnitRadPerSecond}: {UnitWavenumber, UnitNanometer, UnitRadPerSecond},
}

// ConversionPath returns the sequence of units a conversion passes through,
// including both ends.
func ConversionPath(from, to Unit) ([]Unit, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: no conversion from %s to %s", ErrInvalidArgument, from, to)
	}
	if from == to {
		return []Unit{from}, nil
	}
	if _, ok := primitives[unitPair{from, to}]; ok {
		return []Unit{from, to}, nil
	}
	if chain, ok := chains[unitPair{from, to}]; ok {
		return chain, nil
	}
	return nil, fmt.Errorf("%w: no conversion from %s to %s", ErrInvalidArgument, from, to)
}

// ConvertPositions converts every value of xs from one unit to another and
// returns a new slice. It reports false, with a nil slice, if any step of the
// conversion would divide by a zero axis value.
func ConvertPositions(xs []float64, from, to Unit) ([]float64, bool, error) {
	path, err := ConversionPath(from, to)
	if err != nil {
		return nil, false, err
	}

	out := append([]float64(nil), xs...)
	for i := 1; i < len(path); i++ {
		fn := primitives[unitPair{path[i-1], path[i]}]
		for j, v := range out {
			converted, ok := fn(v)
			if !ok {
				return nil, false, nil
			}
			out[j] = converted
		}
	}
	return out, true, nil
}
