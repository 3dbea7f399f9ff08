package geo

import (
	"math"

	"github.com/cockroachdb/errors"
)

// IOBlockSize is the size of one on-disk grid block record.
const IOBlockSize = 2048

func ValidateSpacing(spacing int) error {
	if spacing <= 0 || spacing > math.MaxUint16 {
		return errors.Mark(errors.Newf("grid spacing %d outside [1, %d]", spacing, math.MaxUint16), ErrMathDomain)
	}
	return nil
}

// BlocksPerDegreeRow is the number of blocks stored for each block row of
// the degree whose SW corner is at latInt. The row is two blocks wider than
// the degree so every position inside it has room for a full block. The
// result is unchecked; callers that index with it use DegreeStride.
func BlocksPerDegreeRow(latInt, spacing int, p Profile) int {
	n, _ := blocksPerDegreeRow(latInt, spacing, p)
	return n
}

// DegreeStride is BlocksPerDegreeRow, failing with ErrMathDomain when the
// spacing is too coarse for the latitude to leave a whole block per row.
func DegreeStride(latInt, spacing int, p Profile) (int, error) {
	n, ok := blocksPerDegreeRow(latInt, spacing, p)
	if !ok {
		return 0, errors.Mark(errors.Newf("grid spacing %d overflows the block row at latitude %d", spacing, latInt), ErrMathDomain)
	}
	if n < 1 {
		return 0, errors.Mark(errors.Newf("grid spacing %d leaves no block per row at latitude %d", spacing, latInt), ErrMathDomain)
	}
	return n, nil
}

func blocksPerDegreeRow(latInt, spacing int, p Profile) (int, bool) {
	ref := Anchor(latInt, 0)
	edge := Position{Lat: ref.Lat, Lon: ref.Lon + degreeE7}
	lat, lon := p.offsetE7(edge, MetricOffset{East: float64(2 * spacing * p.BlockSizeY())})
	east := Position{Lat: int32(lat), Lon: int32(lon)}
	off := p.Distance(ref, east)
	n := int(off.East / float64(spacing*p.BlockSpacingY()))
	return n, lon <= math.MaxInt32
}

// RowsPerDegree is the number of block rows whose SW corner lies inside the
// degree.
func RowsPerDegree(latInt, spacing int, p Profile) int {
	ref := Anchor(latInt, 0)
	off := p.Distance(ref, Position{Lat: ref.Lat + degreeE7, Lon: ref.Lon})
	return int(math.Ceil(off.North / float64(spacing*p.BlockSpacingX())))
}

// PositionFromByteOffset returns the SW corner of the block stored at
// byteOffset in the file of the given degree.
func PositionFromByteOffset(latInt, lonInt int, byteOffset int64, spacing int, p Profile) (Position, error) {
	if err := ValidateDegree(latInt, lonInt); err != nil {
		return Position{}, err
	}
	if err := ValidateSpacing(spacing); err != nil {
		return Position{}, err
	}
	if byteOffset < 0 {
		return Position{}, errors.Newf("negative byte offset %d", byteOffset)
	}
	n, err := DegreeStride(latInt, spacing, p)
	if err != nil {
		return Position{}, err
	}
	stride := int64(n)
	blocks := byteOffset / IOBlockSize
	gridIdxX := blocks / stride
	gridIdxY := blocks % stride
	ref := Anchor(latInt, lonInt)
	lat, lon := p.offsetE7(ref, MetricOffset{
		North: float64(gridIdxX*int64(p.BlockSpacingX())) * float64(spacing),
		East:  float64(gridIdxY*int64(p.BlockSpacingY())) * float64(spacing),
	})
	if lat > math.MaxInt32 || lon > math.MaxInt32 {
		return Position{}, errors.Mark(errors.Newf("block %d of degree %d,%d overflows at spacing %d", blocks, latInt, lonInt, spacing), ErrMathDomain)
	}
	return Position{Lat: int32(lat), Lon: int32(lon)}, nil
}
