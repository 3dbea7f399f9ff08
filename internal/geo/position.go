package geo

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

const (
	Scale    = 1e7
	degreeE7 = 10 * 1000 * 1000

	maxLatE7 = 90 * degreeE7
	maxLonE7 = 180 * degreeE7
)

var ErrMathDomain = errors.New("coordinate outside valid range")

// Position is a latitude/longitude pair in degrees * 1e7.
type Position struct {
	Lat int32
	Lon int32
}

// MetricOffset is a north/east displacement in meters from a reference
// position.
type MetricOffset struct {
	North float64
	East  float64
}

func PositionFromDegrees(lat, lon float64) (Position, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Position{}, errors.Mark(errors.Newf("position %f,%f out of range", lat, lon), ErrMathDomain)
	}
	return Position{Lat: int32(math.Round(lat * Scale)), Lon: int32(math.Round(lon * Scale))}, nil
}

// Anchor returns the SW corner of a whole degree.
func Anchor(latInt, lonInt int) Position {
	return Position{Lat: int32(latInt * degreeE7), Lon: int32(lonInt * degreeE7)}
}

func (p Position) LatDegrees() float64 { return float64(p.Lat) / Scale }
func (p Position) LonDegrees() float64 { return float64(p.Lon) / Scale }

func (p Position) Validate() error {
	if p.Lat < -maxLatE7 || p.Lat > maxLatE7 {
		return errors.Mark(errors.Newf("latitude %s outside [-90, 90]", fmtE7(p.Lat)), ErrMathDomain)
	}
	if p.Lon < -maxLonE7 || p.Lon > maxLonE7 {
		return errors.Mark(errors.Newf("longitude %s outside [-180, 180]", fmtE7(p.Lon)), ErrMathDomain)
	}
	return nil
}

func (p Position) String() string {
	return fmtE7(p.Lat) + "," + fmtE7(p.Lon)
}

// ValidateDegree checks a whole-degree anchor.
func ValidateDegree(latInt, lonInt int) error {
	if latInt < -90 || latInt >= 90 {
		return errors.Mark(errors.Newf("degree latitude %d outside [-90, 90)", latInt), ErrMathDomain)
	}
	if lonInt < -180 || lonInt >= 180 {
		return errors.Mark(errors.Newf("degree longitude %d outside [-180, 180)", lonInt), ErrMathDomain)
	}
	return nil
}

func fmtE7(v int32) string {
	return fmt.Sprintf("%.7f", float64(v)/Scale)
}
