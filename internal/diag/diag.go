// Package diag reports how the block grid of a degree maps onto the
// ground.
package diag

import (
	"math"
	"sort"

	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/yakkun/terrain-grid-gen/internal/geo"
	"github.com/yakkun/terrain-grid-gen/internal/grid"
)

// earthRadius is the radius the firmware scaling factor is derived from.
const earthRadius = 6378100.0

// Sample is one position the encoder samples, with its metric coordinate
// from the degree anchor.
type Sample struct {
	BlockNum int
	GX, GY   int
	Pos      geo.Position
	Offset   geo.MetricOffset
}

// MapDegree lists every sample position of every block of the degree in
// blocknum order.
func MapDegree(latInt, lonInt, spacing int, p geo.Profile) ([]Sample, error) {
	l, err := grid.Plan(latInt, lonInt, spacing, p)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(l.Blocks)*p.SamplesPerBlock())
	for _, b := range l.Blocks {
		for gx := 0; gx < p.BlockSizeX(); gx++ {
			for gy := 0; gy < p.BlockSizeY(); gy++ {
				out = append(out, Sample{
					BlockNum: b.BlockNum(),
					GX:       gx,
					GY:       gy,
					Pos:      b.SamplePosition(gx, gy),
					Offset:   b.SampleOffset(gx, gy),
				})
			}
		}
	}
	return out, nil
}

type Summary struct {
	Mean float64 `json:"mean"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

type Report struct {
	Profile    string `json:"profile"`
	LatDegrees int    `json:"lat"`
	LonDegrees int    `json:"lon"`
	Spacing    int    `json:"spacing"`
	Samples    int    `json:"samples"`

	// RoundTrip* compare each sample with the position recovered from
	// its own distance to the anchor, in 1e7 degree units.
	RoundTripLat int64   `json:"round_trip_lat_e7"`
	RoundTripLon int64   `json:"round_trip_lon_e7"`
	RoundTripM   float64 `json:"round_trip_m"`

	// FlatError is the flat-plane distance from the anchor minus the
	// great-circle distance, in meters.
	FlatError Summary `json:"flat_error_m"`
}

// Analyze summarizes the samples of one degree. Samples that lie beyond
// the valid coordinate range are skipped.
func Analyze(samples []Sample, latInt, lonInt, spacing int, p geo.Profile) Report {
	rep := Report{Profile: p.Name, LatDegrees: latInt, LonDegrees: lonInt, Spacing: spacing}
	anchor := geo.Anchor(latInt, lonInt)
	ll := s2.LatLngFromDegrees(anchor.LatDegrees(), anchor.LonDegrees())

	errs := make([]float64, 0, len(samples))
	for _, s := range samples {
		off, err := geo.DistanceNE(anchor, s.Pos, p)
		if err != nil {
			continue
		}
		back, err := geo.AddOffset(anchor, off, p)
		if err != nil {
			continue
		}
		rep.Samples++

		dLat := abs64(int64(back.Lat) - int64(s.Pos.Lat))
		dLon := abs64(int64(back.Lon) - int64(s.Pos.Lon))
		rep.RoundTripLat = max(rep.RoundTripLat, dLat)
		rep.RoundTripLon = max(rep.RoundTripLon, dLon)
		ground := math.Hypot(float64(dLat)*p.ScalingFactor, float64(dLon)*p.ScalingFactor*geo.LongitudeScale(s.Pos.LatDegrees()))
		rep.RoundTripM = math.Max(rep.RoundTripM, ground)

		gc := ll.Distance(s2.LatLngFromDegrees(s.Pos.LatDegrees(), s.Pos.LonDegrees())).Radians() * earthRadius
		errs = append(errs, math.Hypot(off.North, off.East)-gc)
	}

	if len(errs) > 0 {
		rep.FlatError.Mean = stat.Mean(errs, nil)
		abs := make([]float64, len(errs))
		for i, e := range errs {
			abs[i] = math.Abs(e)
		}
		sort.Float64s(abs)
		rep.FlatError.P99 = stat.Quantile(0.99, stat.Empirical, abs, nil)
		rep.FlatError.Max = floats.Max(abs)
	}
	return rep
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
