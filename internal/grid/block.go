package grid

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

var ErrOutsideDegree = errors.New("position lies south or west of the degree anchor")

// Block locates a position inside the grid blocks of one whole degree. X
// runs north and Y runs east, as in the firmware.
type Block struct {
	LatDegrees int
	LonDegrees int

	// GridIdxX/GridIdxY index the block within the degree.
	GridIdxX int
	GridIdxY int

	// IdxX/IdxY index the sample within the block, FracX/FracY the
	// position inside that sample square.
	IdxX  int
	IdxY  int
	FracX float64
	FracY float64

	// Corner is the SW corner of the block.
	Corner geo.Position

	Spacing int
	Stride  int

	profile geo.Profile
}

// Locate finds the block of the degree (latInt, lonInt) containing pos.
func Locate(latInt, lonInt int, pos geo.Position, spacing int, p geo.Profile) (Block, error) {
	if err := geo.ValidateDegree(latInt, lonInt); err != nil {
		return Block{}, err
	}
	if err := geo.ValidateSpacing(spacing); err != nil {
		return Block{}, err
	}
	if err := pos.Validate(); err != nil {
		return Block{}, err
	}
	stride, err := geo.DegreeStride(latInt, spacing, p)
	if err != nil {
		return Block{}, err
	}
	return locate(latInt, lonInt, pos, spacing, stride, p)
}

func locate(latInt, lonInt int, pos geo.Position, spacing, stride int, p geo.Profile) (Block, error) {
	ref := geo.Anchor(latInt, lonInt)
	off := p.Distance(ref, pos)

	// Corners are produced by Offset and come back a few millimeters
	// short, so whole meters are what identify a block.
	north := math.RoundToEven(off.North)
	east := math.RoundToEven(off.East)
	if north < 0 || east < 0 {
		return Block{}, errors.Wrapf(ErrOutsideDegree, "%s in degree %d,%d", pos, latInt, lonInt)
	}

	idxX := int(north / float64(spacing))
	idxY := int(east / float64(spacing))

	b := Block{
		LatDegrees: latInt,
		LonDegrees: lonInt,
		GridIdxX:   idxX / p.BlockSpacingX(),
		GridIdxY:   idxY / p.BlockSpacingY(),
		IdxX:       idxX % p.BlockSpacingX(),
		IdxY:       idxY % p.BlockSpacingY(),
		FracX:      (north - float64(idxX*spacing)) / float64(spacing),
		FracY:      (east - float64(idxY*spacing)) / float64(spacing),
		Spacing:    spacing,
		Stride:     stride,
		profile:    p,
	}
	b.Corner = p.Offset(ref, geo.MetricOffset{
		North: float64(b.GridIdxX*p.BlockSpacingX()) * float64(spacing),
		East:  float64(b.GridIdxY*p.BlockSpacingY()) * float64(spacing),
	})
	return b, nil
}

// BlockNum is the record index of the block in the degree file.
func (b Block) BlockNum() int {
	return b.Stride*b.GridIdxX + b.GridIdxY
}

func (b Block) Profile() geo.Profile {
	return b.profile
}

// SamplePosition is the position of sample (gx, gy) of the block. It is
// measured from the degree anchor, so the apron samples shared by two
// neighbouring blocks are the same position in both.
func (b Block) SamplePosition(gx, gy int) geo.Position {
	return b.profile.Offset(geo.Anchor(b.LatDegrees, b.LonDegrees), b.SampleOffset(gx, gy))
}

// SampleOffset is the metric coordinate of sample (gx, gy) from the degree
// anchor.
func (b Block) SampleOffset(gx, gy int) geo.MetricOffset {
	p := b.profile
	return geo.MetricOffset{
		North: float64((b.GridIdxX*p.BlockSpacingX() + gx) * b.Spacing),
		East:  float64((b.GridIdxY*p.BlockSpacingY() + gy) * b.Spacing),
	}
}

// Subgrid is the bitmap bit of the MAVLink grid holding sample (gx, gy).
func (b Block) Subgrid(gx, gy int) uint {
	return SubgridBit(b.profile, gx, gy)
}

// SubgridBit is the bitmap bit of the 4x4 MAVLink grid holding sample
// (gx, gy).
func SubgridBit(p geo.Profile, gx, gy int) uint {
	return uint((gx/p.MavlinkSize)*p.MulY + gy/p.MavlinkSize)
}

// FullBitmap has one bit set for every MAVLink grid of a block.
func FullBitmap(p geo.Profile) uint64 {
	return (uint64(1) << uint(p.MulX*p.MulY)) - 1
}
