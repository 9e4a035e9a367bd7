package coord

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ErrInvalidNumber is returned for input that has no exact rational form.
var ErrInvalidNumber = errors.New("invalid number")

// secondsPrecision is the number of decimal digits kept on DMS seconds.
const secondsPrecision = 5

// Axis selects which pair of hemisphere references applies to a coordinate.
type Axis int

const (
	Latitude Axis = iota
	Longitude
)

// References returns the negative and positive hemisphere references.
func (a Axis) References() [2]string {
	if a == Longitude {
		return [2]string{"W", "E"}
	}
	return [2]string{"S", "N"}
}

func (a Axis) String() string {
	if a == Longitude {
		return "longitude"
	}
	return "latitude"
}

// DMS is a coordinate split into degrees, minutes and seconds.
// Ref is empty for a coordinate of exactly zero.
type DMS struct {
	Degrees int
	Minutes int
	Seconds float64
	Ref     string
}

// ToDMS converts decimal degrees into degrees, minutes and seconds, with
// seconds rounded half to even at five decimal places.
func ToDMS(value float64, axis Axis) DMS {
	refs := axis.References()
	var ref string
	switch {
	case value < 0:
		ref = refs[0]
	case value > 0:
		ref = refs[1]
	}

	abs := math.Abs(value)
	deg := math.Floor(abs)
	t1 := (abs - deg) * 60
	min := math.Floor(t1)
	sec := roundTo((t1-min)*60, secondsPrecision)

	// Rounding can push seconds up to a full minute.
	if sec >= 60 {
		sec = 0
		min++
	}
	if min >= 60 {
		min = 0
		deg++
	}

	return DMS{
		Degrees: int(deg),
		Minutes: int(min),
		Seconds: sec,
		Ref:     ref,
	}
}

// Decimal folds the DMS value back into signed decimal degrees.
func (d DMS) Decimal() float64 {
	v := float64(d.Degrees) + float64(d.Minutes)/60 + d.Seconds/3600
	if d.Ref == "S" || d.Ref == "W" {
		return -v
	}
	return v
}

func (d DMS) String() string {
	return fmt.Sprintf("%d°%d'%s\"%s", d.Degrees, d.Minutes, strconv.FormatFloat(d.Seconds, 'f', -1, 64), d.Ref)
}

// Fraction is an exact rational number in lowest terms. Den is always positive.
type Fraction struct {
	Num int64
	Den int64
}

func (f Fraction) Float() float64 {
	return float64(f.Num) / float64(f.Den)
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// ParseFraction parses a decimal string such as "48.34297" into the exact
// fraction it denotes.
func ParseFraction(s string) (Fraction, error) {
	s = strings.TrimSpace(s)
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Fraction{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return Fraction{}, fmt.Errorf("%w: %q out of range", ErrInvalidNumber, s)
	}
	return Fraction{Num: r.Num().Int64(), Den: r.Denom().Int64()}, nil
}

// ExactFraction converts v through its shortest decimal representation, so
// 0.1 becomes 1/10 rather than the binary approximation.
func ExactFraction(v float64) (Fraction, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Fraction{}, fmt.Errorf("%w: %v", ErrInvalidNumber, v)
	}
	return ParseFraction(strconv.FormatFloat(v, 'f', -1, 64))
}

// Altitude rounds meters to a whole number (half to even) and returns it as
// a fraction. The reference is always above sea level, so negative
// altitudes are rejected.
func Altitude(meters float64) (Fraction, error) {
	if math.IsNaN(meters) || math.IsInf(meters, 0) {
		return Fraction{}, fmt.Errorf("%w: altitude %v", ErrInvalidNumber, meters)
	}
	rounded := math.RoundToEven(meters)
	if rounded < 0 {
		return Fraction{}, fmt.Errorf("%w: altitude %v below sea level", ErrInvalidNumber, meters)
	}
	return ExactFraction(rounded)
}

// Encode returns the hemisphere reference and the degrees, minutes and
// seconds of value as exact fractions.
func Encode(value float64, axis Axis) (string, [3]Fraction, error) {
	var out [3]Fraction
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", out, fmt.Errorf("%w: %s %v", ErrInvalidNumber, axis, value)
	}

	d := ToDMS(value, axis)
	parts := [3]float64{float64(d.Degrees), float64(d.Minutes), d.Seconds}
	for i, p := range parts {
		f, err := ExactFraction(p)
		if err != nil {
			return "", out, err
		}
		out[i] = f
	}
	return d.Ref, out, nil
}

// roundTo rounds v to digits decimal places, halves to even.
func roundTo(v float64, digits int) float64 {
	scale := math.Pow10(digits)
	return math.RoundToEven(v*scale) / scale
}
