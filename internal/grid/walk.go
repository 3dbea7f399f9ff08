package grid

import (
	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

// Layout lists the blocks stored in one degree file, in blocknum order.
type Layout struct {
	LatDegrees int
	LonDegrees int
	Spacing    int
	Stride     int

	// Count is the number of records in the file.
	Count  int
	Blocks []Block
	// Skipped holds blocknums whose corner does not locate back to the
	// same blocknum. Their records are left empty.
	Skipped []int
}

// Plan enumerates every block of the degree, stopping at the first block
// whose corner reaches the next whole degree of latitude.
func Plan(latInt, lonInt, spacing int, p geo.Profile) (*Layout, error) {
	if err := geo.ValidateDegree(latInt, lonInt); err != nil {
		return nil, err
	}
	if err := geo.ValidateSpacing(spacing); err != nil {
		return nil, err
	}

	stride, err := geo.DegreeStride(latInt, spacing, p)
	if err != nil {
		return nil, err
	}

	l := &Layout{
		LatDegrees: latInt,
		LonDegrees: lonInt,
		Spacing:    spacing,
		Stride:     stride,
	}
	limit := int64(geo.Anchor(latInt, lonInt).Lat) + int64(geo.Scale)

	for n := 0; ; n++ {
		corner, err := geo.PositionFromByteOffset(latInt, lonInt, int64(n)*geo.IOBlockSize, spacing, p)
		if err != nil {
			return nil, err
		}
		if int64(corner.Lat) >= limit {
			l.Count = n
			break
		}
		b, err := locate(latInt, lonInt, corner, spacing, l.Stride, p)
		if err != nil || b.BlockNum() != n {
			l.Skipped = append(l.Skipped, n)
			continue
		}
		l.Blocks = append(l.Blocks, b)
	}
	return l, nil
}

// Rows is the number of block rows in the file.
func (l *Layout) Rows() int {
	if l.Stride == 0 {
		return 0
	}
	return (l.Count + l.Stride - 1) / l.Stride
}

// Walk calls fn for every block of the degree in blocknum order and stops
// at the first error fn returns.
func Walk(latInt, lonInt, spacing int, p geo.Profile, fn func(Block) error) error {
	l, err := Plan(latInt, lonInt, spacing, p)
	if err != nil {
		return err
	}
	for _, b := range l.Blocks {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}
