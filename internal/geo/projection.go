package geo

import (
	"math"

	"github.com/cockroachdb/errors"
)

const radiansPerDegree = math.Pi / 180

// LongitudeScale is the firmware's meridian convergence factor, floored at
// 0.01 near the poles.
func LongitudeScale(latDeg float64) float64 {
	scale := math.Cos(latDeg * radiansPerDegree)
	if scale < 0.01 {
		return 0.01
	}
	return scale
}

func diffLongitudeE7(lon1, lon2 int32) int64 {
	if int64(lon1)*int64(lon2) >= 0 {
		return int64(lon1) - int64(lon2)
	}
	dlon := int64(lon1) - int64(lon2)
	if dlon > 1800000000 {
		dlon -= 3600000000
	} else if dlon < -1800000000 {
		dlon += 3600000000
	}
	return dlon
}

// Distance is the unchecked flat-plane north/east distance from "from" to
// "to". Callers that take positions from outside must use DistanceNE.
func (p Profile) Distance(from, to Position) MetricOffset {
	dlat := int64(to.Lat) - int64(from.Lat)

	var dlon float64
	if p.WrapLongitude {
		dlon = float64(diffLongitudeE7(to.Lon, from.Lon))
	} else {
		dlon = float64(int64(to.Lon) - int64(from.Lon))
	}
	if p.MidLatitudeScale {
		dlon *= LongitudeScale(float64(int64(from.Lat)+int64(to.Lat)) * 0.5 * 1.0e-7)
	} else {
		dlon *= LongitudeScale(float64(from.Lat) * 1.0e-7)
	}

	return MetricOffset{
		North: float64(dlat) * p.ScalingFactor,
		East:  dlon * p.ScalingFactor,
	}
}

// Offset is the unchecked inverse of Distance. Results may lie slightly
// beyond the valid range when ref sits at the edge of the world.
func (p Profile) Offset(ref Position, off MetricOffset) Position {
	lat, lon := p.offsetE7(ref, off)
	return Position{Lat: int32(lat), Lon: int32(lon)}
}

func (p Profile) offsetE7(ref Position, off MetricOffset) (int64, int64) {
	dlat := math.Trunc(off.North * p.ScalingFactorInv)
	scaleLat := float64(ref.Lat)
	if p.MidLatitudeScale {
		scaleLat += dlat * 0.5
	}
	dlon := math.Trunc((off.East * p.ScalingFactorInv) / LongitudeScale(scaleLat*1.0e-7))
	return int64(ref.Lat) + int64(dlat), int64(ref.Lon) + int64(dlon)
}

func DistanceNE(ref, pos Position, p Profile) (MetricOffset, error) {
	if err := ref.Validate(); err != nil {
		return MetricOffset{}, errors.Wrap(err, "reference")
	}
	if err := pos.Validate(); err != nil {
		return MetricOffset{}, err
	}
	return p.Distance(ref, pos), nil
}

func AddOffset(ref Position, off MetricOffset, p Profile) (Position, error) {
	if err := ref.Validate(); err != nil {
		return Position{}, errors.Wrap(err, "reference")
	}
	if !finite(off.North) || !finite(off.East) {
		return Position{}, errors.Mark(errors.Newf("offset %v is not finite", off), ErrMathDomain)
	}
	lat, lon := p.offsetE7(ref, off)
	if lat < math.MinInt32 || lat > math.MaxInt32 || lon < math.MinInt32 || lon > math.MaxInt32 {
		return Position{}, errors.Mark(errors.Newf("offset %v from %s overflows", off, ref), ErrMathDomain)
	}
	return Position{Lat: int32(lat), Lon: int32(lon)}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
